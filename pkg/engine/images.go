package engine

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/containerd/containerd"
	"github.com/containerd/containerd/images"
)

// ProgressUpdate is a point-in-time resolution progress observation,
// surfaced to an optional caller-supplied sink. Percent is in [0,99];
// callers never see 100 mid-flight, only the final success/failure.
type ProgressUpdate struct {
	Percent int
	Detail  string
}

// ProgressFunc receives progress updates during a pull or import. A
// nil ProgressFunc must not change resolution behaviour.
type ProgressFunc func(ProgressUpdate)

// HasImage reports whether ref is already present in the local content
// store.
func (e *ContainerdEngine) HasImage(ctx context.Context, ref string) (bool, error) {
	ctx = e.ctx(ctx)
	_, err := e.client.GetImage(ctx, ref)
	if err == nil {
		return true, nil
	}
	if isNotFound(err) {
		return false, nil
	}
	return false, fmt.Errorf("get image %s: %w", ref, err)
}

// PullImage pulls ref from its registry, unpacking it for the default
// snapshotter. Progress is derived from the content store's ingest
// status table (the same source `ctr images pull --debug` reads): the
// percentage comes from ParsePullProgressBytes on the raw byte counts,
// and the detail text is a "<offset>B / <total>B" string.
func (e *ContainerdEngine) PullImage(ctx context.Context, ref string, progress ProgressFunc) (string, error) {
	ctx = e.ctx(ctx)

	stop := make(chan struct{})
	if progress != nil {
		go e.pollIngestProgress(ctx, ref, progress, stop)
	}

	image, err := e.client.Pull(ctx, ref, containerd.WithPullUnpack)
	close(stop)
	if err != nil {
		return "", fmt.Errorf("pull image %s: %w", ref, err)
	}
	return image.Target().Digest.String(), nil
}

// ImportImage imports an OCI image archive (produced by a prior build
// step, e.g. `docker save`/`buildctl --output type=oci`) into the
// content store and tags the resulting image, standing in for a native
// "docker build" since containerd has no image-building facility of
// its own. Progress is derived the same way as PullImage.
func (e *ContainerdEngine) ImportImage(ctx context.Context, archivePath, tag string, progress ProgressFunc) (string, error) {
	ctx = e.ctx(ctx)

	f, err := os.Open(archivePath)
	if err != nil {
		return "", fmt.Errorf("open image archive %s: %w", archivePath, err)
	}
	defer f.Close()

	stop := make(chan struct{})
	if progress != nil {
		go e.pollIngestProgress(ctx, tag, progress, stop)
	}

	imported, err := e.client.Import(ctx, f, containerd.WithIndexName(tag))
	close(stop)
	if err != nil {
		return "", fmt.Errorf("import image archive %s: %w", archivePath, err)
	}
	if len(imported) == 0 {
		return "", fmt.Errorf("import image archive %s: no images produced", archivePath)
	}

	target := imported[0].Target
	if _, err := e.client.GetImage(ctx, imported[0].Name); err != nil {
		if _, err := e.client.ImageService().Create(ctx, images.Image{
			Name:   tag,
			Target: target,
		}); err != nil && !isAlreadyExists(err) {
			return "", fmt.Errorf("tag imported image %s as %s: %w", imported[0].Name, tag, err)
		}
	}
	return target.Digest.String(), nil
}

// pollIngestProgress samples the content store's ingest status table
// every 200ms until stop is closed, reporting the furthest-along
// transfer under ref as a progress update.
func (e *ContainerdEngine) pollIngestProgress(ctx context.Context, ref string, progress ProgressFunc, stop <-chan struct{}) {
	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			statuses, err := e.client.ContentStore().ListStatuses(ctx)
			if err != nil {
				continue
			}
			var best *struct {
				offset, total int64
			}
			for _, st := range statuses {
				if st.Total <= 0 {
					continue
				}
				if best == nil || st.Offset > best.offset {
					best = &struct{ offset, total int64 }{st.Offset, st.Total}
				}
			}
			if best == nil {
				continue
			}
			detail := fmt.Sprintf("%dB / %dB", best.offset, best.total)
			percent, ok := ParsePullProgressBytes(best.offset, best.total)
			if !ok {
				continue
			}
			progress(ProgressUpdate{Percent: percent, Detail: detail})
		}
	}
}

// ParsePullProgressBytes converts a raw offset/total pair into a
// clamped 0-99 percentage, mirroring the textual parser in
// pkg/imageresolver but operating on already-structured numbers
// instead of a log line.
func ParsePullProgressBytes(offset, total int64) (int, bool) {
	if total <= 0 {
		return 0, false
	}
	percent := int(offset * 100 / total)
	if percent < 0 {
		percent = 0
	}
	if percent > 99 {
		percent = 99
	}
	return percent, true
}
