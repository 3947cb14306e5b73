package webcam

import (
	"context"
	"testing"

	"github.com/teslashibe/go-facegate/pkg/camera"
)

func TestIndexSelection(t *testing.T) {
	d := New(nil)

	tests := []struct {
		name string
		c    camera.Constraints
		want int
	}{
		{"front", camera.Constraints{FacingMode: camera.FacingUser, DeviceIndex: -1}, 0},
		{"rear", camera.Constraints{FacingMode: camera.FacingEnvironment, DeviceIndex: -1}, 1},
		{"unknown facing", camera.Constraints{FacingMode: "left", DeviceIndex: -1}, 0},
		{"explicit index", camera.Constraints{FacingMode: camera.FacingEnvironment, DeviceIndex: 3}, 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := d.index(tt.c); got != tt.want {
				t.Errorf("index() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestGetUserMediaRejectsAudio(t *testing.T) {
	d := New(nil)

	_, err := d.GetUserMedia(context.Background(), camera.Constraints{Video: true, Audio: true})
	if camera.ErrorName(err) != camera.ErrNameOverconstrained {
		t.Errorf("Expected overconstrained error, got %v", err)
	}

	_, err = d.GetUserMedia(context.Background(), camera.Constraints{})
	if camera.ErrorName(err) != camera.ErrNameOverconstrained {
		t.Errorf("Expected overconstrained error for no video, got %v", err)
	}
}

func TestGetUserMediaCancelled(t *testing.T) {
	d := New(nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := d.GetUserMedia(ctx, camera.Constraints{Video: true})
	if camera.ErrorName(err) != camera.ErrNameAbort {
		t.Errorf("Expected abort error, got %v", err)
	}
}

func TestGetUserMediaMissingDevice(t *testing.T) {
	d := New(nil)

	// Index 63 is far beyond any real /dev/videoN.
	_, err := d.GetUserMedia(context.Background(), camera.Constraints{Video: true, DeviceIndex: 63})
	if err == nil {
		t.Skip("device 63 unexpectedly present")
	}
	name := camera.ErrorName(err)
	if name != camera.ErrNameNotFound && name != camera.ErrNameNotReadable {
		t.Errorf("Expected not-found style error, got %v", err)
	}
}
