//go:build !portaudio
// +build !portaudio

package portaudio_test

import (
	"context"
	"errors"
	"testing"

	"github.com/voxcall/voxcall/pkg/device"
	"github.com/voxcall/voxcall/pkg/device/portaudio"
)

func TestStub_OpensFailWithTypedError(t *testing.T) {
	t.Parallel()

	p := portaudio.New()

	_, err := p.OpenCapture(context.Background(), device.CaptureConfig{SampleRate: 16000})
	var derr *device.Error
	if !errors.As(err, &derr) {
		t.Fatalf("OpenCapture error %v is not a *device.Error", err)
	}
	if derr.Reason != device.ReasonNotFound {
		t.Errorf("reason = %v; want NOT_FOUND", derr.Reason)
	}

	if _, err := p.OpenRender(context.Background(), 24000); err == nil {
		t.Error("OpenRender should fail in the stub")
	}
	if _, err := p.OpenVideo(context.Background(), device.CaptureConfig{}); err == nil {
		t.Error("OpenVideo should fail in the stub")
	}
}
