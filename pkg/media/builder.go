// Package media turns platform-native image references into transport-ready
// multipart payloads. Two strategies exist - remote-fetch for assets behind
// URLs and filesystem for local captures - and both produce equivalent wire
// payloads.
package media

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"os"
	"path"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/leafwise/leafwise-go/core"
)

// Multipart field names the backend expects.
const (
	FieldSingle = "file"
	FieldBatch  = "files"
)

// Packet is a ready-to-send multipart payload.
type Packet struct {
	ContentType string
	Body        io.Reader
}

// Builder assembles a multipart payload from a batch of assets. field is
// FieldSingle or FieldBatch; every asset is appended under it.
type Builder interface {
	Build(ctx context.Context, field string, assets []core.MediaAsset) (*Packet, error)
}

// ============================================
// REMOTE-FETCH STRATEGY (web)
// ============================================

// RemoteBuilder dereferences each asset URI over HTTP before assembling
// the payload. All fetches for a batch run concurrently with a single
// all-or-nothing join: one failed dereference fails the whole batch before
// any upload request is issued.
type RemoteBuilder struct {
	http core.HTTPDoer
}

func NewRemoteBuilder(doer core.HTTPDoer) *RemoteBuilder {
	if doer == nil {
		doer = http.DefaultClient
	}
	return &RemoteBuilder{http: doer}
}

var _ Builder = (*RemoteBuilder)(nil)

func (b *RemoteBuilder) Build(ctx context.Context, field string, assets []core.MediaAsset) (*Packet, error) {
	blobs := make([][]byte, len(assets))

	group, groupCtx := errgroup.WithContext(ctx)
	for i, asset := range assets {
		group.Go(func() error {
			data, err := b.fetch(groupCtx, asset)
			if err != nil {
				return &core.MediaFetchError{AssetName: assetName(asset), Err: err}
			}
			blobs[i] = data
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	for i, asset := range assets {
		part, err := createImagePart(writer, field, assetName(asset), mimeType(asset))
		if err != nil {
			return nil, fmt.Errorf("failed to create part: %w", err)
		}
		if _, err := part.Write(blobs[i]); err != nil {
			return nil, fmt.Errorf("failed to write part: %w", err)
		}
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to finalize payload: %w", err)
	}

	return &Packet{ContentType: writer.FormDataContentType(), Body: &buf}, nil
}

func (b *RemoteBuilder) fetch(ctx context.Context, asset core.MediaAsset) ([]byte, error) {
	if asset.URI == "" {
		return nil, core.ErrMissingURI
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, asset.URI, nil)
	if err != nil {
		return nil, err
	}

	resp, err := b.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("dereference returned %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

// ============================================
// FILESYSTEM STRATEGY (native)
// ============================================

// FileBuilder references local files directly; bytes are streamed into the
// request body at send time rather than buffered here. Assets are verified
// to exist up front so a bad batch fails before any upload starts.
type FileBuilder struct{}

func NewFileBuilder() *FileBuilder { return &FileBuilder{} }

var _ Builder = (*FileBuilder)(nil)

func (b *FileBuilder) Build(ctx context.Context, field string, assets []core.MediaAsset) (*Packet, error) {
	paths := make([]string, len(assets))
	for i, asset := range assets {
		p := localPath(asset.URI)
		if p == "" {
			return nil, &core.MediaFetchError{AssetName: assetName(asset), Err: core.ErrMissingURI}
		}
		if _, err := os.Stat(p); err != nil {
			return nil, &core.MediaFetchError{AssetName: assetName(asset), Err: err}
		}
		paths[i] = p
	}

	reader, pipe := io.Pipe()
	writer := multipart.NewWriter(pipe)

	go func() {
		for i, asset := range assets {
			if err := ctx.Err(); err != nil {
				pipe.CloseWithError(err)
				return
			}
			if err := streamFilePart(writer, field, asset, paths[i]); err != nil {
				pipe.CloseWithError(err)
				return
			}
		}
		pipe.CloseWithError(writer.Close())
	}()

	return &Packet{ContentType: writer.FormDataContentType(), Body: reader}, nil
}

func streamFilePart(writer *multipart.Writer, field string, asset core.MediaAsset, path string) error {
	file, err := os.Open(path)
	if err != nil {
		return &core.MediaFetchError{AssetName: assetName(asset), Err: err}
	}
	defer file.Close()

	part, err := createImagePart(writer, field, assetName(asset), mimeType(asset))
	if err != nil {
		return err
	}
	_, err = io.Copy(part, file)
	return err
}

// ============================================
// SHARED HELPERS
// ============================================

func createImagePart(writer *multipart.Writer, field, name, mime string) (io.Writer, error) {
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, field, name))
	header.Set("Content-Type", mime)
	return writer.CreatePart(header)
}

// assetName resolves the part filename: explicit name, then the URI's last
// segment, then a generated capture name so batch parts never collide.
func assetName(asset core.MediaAsset) string {
	if asset.Name != "" {
		return asset.Name
	}
	if asset.URI != "" {
		if base := path.Base(strings.TrimSuffix(asset.URI, "/")); base != "." && base != "/" {
			return base
		}
	}
	return fmt.Sprintf("capture-%s.jpg", uuid.NewString()[:8])
}

func mimeType(asset core.MediaAsset) string {
	if asset.MimeType != "" {
		return asset.MimeType
	}
	return InferMimeType(assetName(asset))
}

// localPath strips a file:// scheme if present.
func localPath(uri string) string {
	return strings.TrimPrefix(uri, "file://")
}
