// Command fetch-payload downloads the downloader executable and scripts from
// S3 into the embedded payload directory before the installer is built.
package main

import (
	"context"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/sequence-downloader/setupusb/internal/config"
	"github.com/sequence-downloader/setupusb/pkg/errors"
	"github.com/sequence-downloader/setupusb/pkg/payload"
	"github.com/sequence-downloader/setupusb/pkg/security"
	"github.com/sequence-downloader/setupusb/pkg/storage"
)

var checksums []string

var rootCmd = &cobra.Command{
	Use:   "fetch-payload [name...]",
	Short: "Fetch payload files from S3 into the embed directory",
	Long: `Downloads payload files from <bucket>/<prefix><name>. Without names every
manifest entry is fetched; entries absent from the bucket are skipped so that
files kept in the source tree are left alone.`,
	SilenceUsage: true,
	RunE:         runFetch,
}

func init() {
	flags := rootCmd.Flags()
	flags.String("bucket", "", "S3 bucket holding payload artifacts")
	flags.String("region", "us-east-1", "S3 region")
	flags.String("prefix", "payload/", "Key prefix of payload artifacts")
	flags.String("out", filepath.Join("pkg", "payload", "assets"), "Directory to write files into")
	flags.Int64("max-file-size", 512*1024*1024, "Max size of a single file in bytes")
	flags.StringArrayVar(&checksums, "sha256", nil, "Expected checksum as name=hex (repeatable)")

	viper.BindPFlag("s3-bucket", flags.Lookup("bucket"))
	viper.BindPFlag("s3-region", flags.Lookup("region"))
	viper.BindPFlag("s3-prefix", flags.Lookup("prefix"))
	viper.BindPFlag("payload-out", flags.Lookup("out"))
	viper.BindPFlag("max-file-size", flags.Lookup("max-file-size"))
}

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runFetch(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		return errors.Wrap(err, "config load failed")
	}
	if err := cfg.ValidateFetch(); err != nil {
		return errors.Wrap(err, "config invalid")
	}

	want, err := parseChecksums(checksums)
	if err != nil {
		return err
	}

	names := args
	explicit := len(names) > 0
	if !explicit {
		names = payload.DefaultManifest().Sources()
	}

	client, err := storage.NewClient(ctx, cfg.S3Bucket, cfg.S3Region)
	if err != nil {
		return errors.Wrap(err, "S3 client failed")
	}

	validator := security.NewValidator(cfg.MaxFileSize, cfg.MaxTotalSize)

	// Explicit names are checked one by one; the default manifest is matched
	// against a single listing of the prefix and absent entries are skipped.
	present := map[string]bool{}
	if !explicit {
		available, err := client.ListObjects(ctx, cfg.S3Prefix)
		if err != nil {
			return err
		}
		for _, key := range available {
			present[key] = true
		}
	}

	fetched := 0
	for _, name := range names {
		if err := security.ValidatePath(name); err != nil {
			return err
		}
		key := path.Join(cfg.S3Prefix, name)
		if explicit {
			ok, err := client.Exists(ctx, key)
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("object %s not found in bucket %s", key, cfg.S3Bucket)
			}
		} else if !present[key] {
			slog.Info("payload_object_skipped", "s3_key", key)
			continue
		}

		res, err := client.Download(ctx, key, filepath.Join(cfg.PayloadOut, filepath.FromSlash(name)), want[name], validator)
		if err != nil {
			return err
		}
		fmt.Printf("%s  %s (%d bytes)\n", res.SHA256, name, res.Size)
		fetched++
	}

	if fetched == 0 {
		return fmt.Errorf("nothing fetched from s3://%s/%s", cfg.S3Bucket, cfg.S3Prefix)
	}
	return nil
}

// parseChecksums turns name=hex pairs into a lookup table.
func parseChecksums(pairs []string) (map[string]string, error) {
	out := make(map[string]string, len(pairs))
	for _, p := range pairs {
		name, sum, ok := strings.Cut(p, "=")
		if !ok || name == "" || len(sum) != 64 {
			return nil, fmt.Errorf("invalid --sha256 %q, want name=<64 hex digits>", p)
		}
		if _, err := hex.DecodeString(sum); err != nil {
			return nil, fmt.Errorf("invalid --sha256 %q: %w", p, err)
		}
		out[name] = strings.ToLower(sum)
	}
	return out, nil
}
