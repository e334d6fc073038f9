package main

import (
	"archive/tar"
	"compress/gzip"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

func backupCmd() *cobra.Command {
	var outputPath string

	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Archive the sqlite dialogue store and the config file",
		Long: `Creates a .tar.gz archive holding the sqlite database (with its WAL
files) and the config file. Postgres stores are backed up with pg_dump instead.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if cfg.Memory.Driver == "postgres" {
				return errors.New("memory.driver is postgres; use pg_dump for the dialogue store")
			}

			if outputPath == "" {
				dir := filepath.Join(filepath.Dir(cfg.Memory.DBPath), "backups")
				if err := os.MkdirAll(dir, 0o755); err != nil {
					return fmt.Errorf("cannot create backup directory: %w", err)
				}
				outputPath = filepath.Join(dir, "marketbot-"+time.Now().Format("20060102-150405")+".tar.gz")
			}

			files := existingFiles(cfg.Memory.DBPath, cfg.Memory.DBPath+"-wal", cfg.Memory.DBPath+"-shm", resolveConfigPath())
			if len(files) == 0 {
				return fmt.Errorf("nothing to back up (db: %s)", cfg.Memory.DBPath)
			}

			out, err := os.Create(outputPath)
			if err != nil {
				return err
			}
			if err := writeArchive(out, files); err != nil {
				out.Close()
				return fmt.Errorf("backup failed: %w", err)
			}
			if err := out.Close(); err != nil {
				return err
			}

			// read the archive back so a truncated write is reported here
			in, err := os.Open(outputPath)
			if err != nil {
				return err
			}
			defer in.Close()
			names, err := archiveNames(in)
			if err != nil {
				return fmt.Errorf("verify backup: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Backup created: %s\n", outputPath)
			for _, n := range names {
				fmt.Fprintf(cmd.OutOrStdout(), "  - %s\n", n)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&outputPath, "output", "o", "", "archive path (default: <db dir>/backups/marketbot-<timestamp>.tar.gz)")
	return cmd
}

func existingFiles(paths ...string) []string {
	var out []string
	for _, p := range paths {
		if info, err := os.Stat(p); err == nil && info.Mode().IsRegular() {
			out = append(out, p)
		}
	}
	return out
}

// writeArchive writes files into a gzipped tar stream under their base names.
func writeArchive(w io.Writer, files []string) error {
	gz := gzip.NewWriter(w)
	tw := tar.NewWriter(gz)
	for _, path := range files {
		if err := addToArchive(tw, path); err != nil {
			return fmt.Errorf("add %s: %w", path, err)
		}
	}
	if err := tw.Close(); err != nil {
		return err
	}
	return gz.Close()
}

func addToArchive(tw *tar.Writer, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return err
	}
	hdr, err := tar.FileInfoHeader(info, "")
	if err != nil {
		return err
	}
	hdr.Name = filepath.Base(path)
	if err := tw.WriteHeader(hdr); err != nil {
		return err
	}
	_, err = io.Copy(tw, f)
	return err
}

// archiveNames lists the entry names of a gzipped tar stream.
func archiveNames(r io.Reader) ([]string, error) {
	gz, err := gzip.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("not a gzip archive: %w", err)
	}
	defer gz.Close()

	var names []string
	tr := tar.NewReader(gz)
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			return names, nil
		}
		if err != nil {
			return nil, err
		}
		if strings.Contains(hdr.Name, "..") {
			return nil, fmt.Errorf("unsafe entry %q", hdr.Name)
		}
		names = append(names, hdr.Name)
	}
}
