package expr

import (
	"context"
	"strings"

	"github.com/Devam42/Microfirst/pkg/storage"
)

// Scan walks the expression base directory for clip files. Every
// `.bin` under baseDir, at any depth, is a clip; whatever folders the
// user dropped onto the card are picked up without configuration.
func Scan(ctx context.Context, store storage.FileStore, baseDir string) ([]string, error) {
	paths, err := store.List(ctx, baseDir)
	if err != nil {
		return nil, err
	}
	var clips []string
	for _, p := range paths {
		if strings.HasSuffix(p, ".bin") {
			clips = append(clips, p)
		}
	}
	return clips, nil
}
