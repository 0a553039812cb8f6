package service

import (
	"context"
	"os/exec"
	"sync"
	"time"

	"github.com/Edric-Li/forguncy-arsenal-sub000/pkg/util"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

// VideoConverter transcodes video sources to a web-playable format by
// shelling out to ffmpeg under a bounded gate
type VideoConverter struct {
	FFmpeg  string
	Timeout time.Duration

	gate        *semaphore.Weighted
	encoderOnce sync.Once
	encoder     string
}

func NewVideoConverter(ffmpeg string) *VideoConverter {
	return &VideoConverter{
		FFmpeg:  ffmpeg,
		Timeout: DefaultProcessTimeout,
		gate:    newSubprocessGate(),
	}
}

func (v *VideoConverter) Name() string { return "video" }

func (v *VideoConverter) Extensions() []string {
	return []string{"avi", "mov", "mkv", "wmv", "flv", "m4v", "mpg", "mpeg", "webm"}
}

func (v *VideoConverter) Available() bool {
	_, err := exec.LookPath(v.FFmpeg)
	return err == nil
}

func (v *VideoConverter) Convert(ctx context.Context, src, dst string) error {
	args := []string{
		"-i", src,
		"-c:v", v.pickEncoder(),
		"-c:a", "aac",
		"-movflags", "+faststart",
		"-loglevel", "error",
		"-nostats",
		"-y", dst,
	}

	return runProcess(ctx, v.gate, v.Timeout, v.FFmpeg, args...)
}

// pickEncoder checks once whether a GPU is present and selects a
// hardware encoder when it is
func (v *VideoConverter) pickEncoder() string {
	v.encoderOnce.Do(func() {
		v.encoder = "libx264"

		gpu, err := util.DetectGPU()
		if err != nil {
			zap.L().Debug("GPU detection failed, using software encoding", zap.Error(err))
			return
		}
		if gpu == "nvidia" {
			v.encoder = "h264_nvenc"
		}
	})
	return v.encoder
}
