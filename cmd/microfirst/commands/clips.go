package commands

import (
	"context"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/spf13/cobra"

	"github.com/Devam42/Microfirst/pkg/cli"
	"github.com/Devam42/Microfirst/pkg/expr"
	"github.com/Devam42/Microfirst/pkg/storage"
)

var clipsCmd = &cobra.Command{
	Use:   "clips",
	Short: "Expression clip tooling",
}

var clipsLsCmd = &cobra.Command{
	Use:   "ls [dir]",
	Short: "List expression clips with their manifest geometry",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runClipsLs,
}

var clipsInfoCmd = &cobra.Command{
	Use:   "info <clip>",
	Short: "Show resolved manifest details for one clip",
	Args:  cobra.ExactArgs(1),
	RunE:  runClipsInfo,
}

var clipsSyncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Pull the clip library from S3 into the local clip directory",
	RunE:  runClipsSync,
}

func init() {
	clipsCmd.AddCommand(clipsLsCmd, clipsInfoCmd, clipsSyncCmd)
	rootCmd.AddCommand(clipsCmd)
}

func openClipStore() (*storage.Local, string, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, "", err
	}
	store, err := storage.NewLocal(cfg.ClipsDir)
	if err != nil {
		return nil, "", fmt.Errorf("open clip store: %w", err)
	}
	return store, cfg.ClipsDir, nil
}

func runClipsLs(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	store, dir, err := openClipStore()
	if err != nil {
		return err
	}
	base := ""
	if len(args) == 1 {
		base = args[0]
	}
	clips, err := expr.Scan(ctx, store, base)
	if err != nil {
		return err
	}
	if len(clips) == 0 {
		fmt.Printf("no clips under %s\n", dir)
		return nil
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "CLIP\tGEOMETRY\tFPS\tFRAMES\tLOOP\tSIZE")
	for _, path := range clips {
		m, err := expr.ResolveManifest(ctx, store, path)
		if err != nil {
			fmt.Fprintf(w, "%s\t(unreadable: %v)\n", path, err)
			continue
		}
		f, err := store.Open(ctx, path)
		if err != nil {
			fmt.Fprintf(w, "%s\t(unreadable: %v)\n", path, err)
			continue
		}
		size := f.Size()
		f.Close()
		fmt.Fprintf(w, "%s\t%dx%d\t%d\t%d\t%v\t%s\n",
			path, m.Width, m.Height, m.FPS, m.Frames, m.Loop, cli.FormatBytes(size))
	}
	return w.Flush()
}

func runClipsInfo(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	store, _, err := openClipStore()
	if err != nil {
		return err
	}
	path := args[0]
	m, err := expr.ResolveManifest(ctx, store, path)
	if err != nil {
		return err
	}
	f, err := store.Open(ctx, path)
	if err != nil {
		return err
	}
	size := f.Size()
	f.Close()

	fmt.Printf("clip:      %s\n", path)
	fmt.Printf("geometry:  %dx%d (%d bytes/frame)\n", m.Width, m.Height, m.FrameSize())
	fmt.Printf("fps:       %d (%s/frame)\n", m.FPS, cli.FormatDuration(m.FrameInterval()))
	fmt.Printf("frames:    %d\n", m.Frames)
	fmt.Printf("loop:      %v\n", m.Loop)
	fmt.Printf("size:      %s\n", cli.FormatBytes(size))
	if m.Frames > 0 {
		fmt.Printf("duration:  %s\n",
			cli.FormatDuration(time.Duration(m.Frames)*m.FrameInterval()))
	}
	if rem := size % m.FrameSize(); rem != 0 {
		fmt.Printf("warning:   %d trailing bytes beyond the last whole frame\n", rem)
	}
	return nil
}

func runClipsSync(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.Sync.Bucket == "" {
		return fmt.Errorf("clips sync: no sync.bucket configured")
	}

	local, err := storage.NewLocal(cfg.ClipsDir)
	if err != nil {
		return fmt.Errorf("open clip store: %w", err)
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.Sync.Region))
	if err != nil {
		return fmt.Errorf("load AWS config: %w", err)
	}
	remote := storage.NewS3(s3.NewFromConfig(awsCfg), cfg.Sync.Bucket, cfg.Sync.Prefix)

	paths, err := remote.List(ctx, "")
	if err != nil {
		return fmt.Errorf("list s3://%s/%s: %w", cfg.Sync.Bucket, cfg.Sync.Prefix, err)
	}

	var synced int
	for _, path := range paths {
		if !strings.HasSuffix(path, ".bin") && !strings.HasSuffix(path, ".txt") {
			continue
		}
		if err := copyObject(ctx, remote, local, path); err != nil {
			return fmt.Errorf("sync %s: %w", path, err)
		}
		synced++
		if IsVerbose() {
			fmt.Printf("synced %s\n", path)
		}
	}
	fmt.Printf("synced %d files from s3://%s/%s to %s\n",
		synced, cfg.Sync.Bucket, cfg.Sync.Prefix, cfg.ClipsDir)
	return nil
}

func copyObject(ctx context.Context, remote, local storage.FileStore, path string) error {
	r, err := remote.Read(ctx, path)
	if err != nil {
		return err
	}
	defer r.Close()
	w, err := local.Write(ctx, path)
	if err != nil {
		return err
	}
	if _, err := io.Copy(w, r); err != nil {
		w.Close()
		return err
	}
	return w.Close()
}
