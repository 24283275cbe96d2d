package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/zsiec/vodindex/internal/fetch"
	"github.com/zsiec/vodindex/internal/manifest"
)

func newBuildCommand(ctx *cliContext) *cobra.Command {
	var (
		jsonOut bool
		video   bool
		prepare bool
	)
	cmd := &cobra.Command{
		Use:   "build <payload.json|->",
		Short: "Assemble a manifest from a payload file and print it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := ctx.cfg
			if !cmd.Flags().Changed("video") {
				video = cfg.Playback.VideoEnabled
			}

			p, err := readPayload(cmd, args[0])
			if err != nil {
				return err
			}

			fetcher, err := fetch.New(fetch.Config{
				Scheme:   cfg.Delivery.Scheme,
				Origin:   cfg.Delivery.Origin,
				HTTP3:    cfg.Delivery.HTTP3,
				Timeout:  cfg.Delivery.Timeout,
				MaxBytes: cfg.Delivery.MaxBytes,
			}, nil)
			if err != nil {
				return err
			}
			defer fetcher.Close()

			asm := manifest.NewAssembler(manifest.Config{
				Scheme:             cfg.Delivery.Scheme,
				RejectedAudioXTags: cfg.Formats.RejectedAudioXTags,
			}, fetcher, nil, nil)
			m, err := asm.Build(p, manifest.Options{VideoEnabled: video})
			if err != nil {
				return err
			}
			defer m.Close()

			if prepare {
				for id, err := range manifest.StreamErrors(m.PrepareAll(cmd.Context())) {
					slog.Warn("segment index failed", "stream", id, "error", err)
				}
			}

			if jsonOut {
				return writeJSON(cmd, m)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, renderVariants(m))
			fmt.Fprintln(out, renderStreams(m, prepare))
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Print the manifest as JSON")
	cmd.Flags().BoolVar(&video, "video", true, "Include video streams (defaults to playback.video_enabled)")
	cmd.Flags().BoolVar(&prepare, "prepare", false, "Fetch and parse every stream's segment index")
	return cmd
}

func readPayload(cmd *cobra.Command, path string) (*manifest.Payload, error) {
	var r io.Reader = cmd.InOrStdin()
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		r = f
	}
	return manifest.ParsePayload(r)
}

func streamRef(s *manifest.Stream) string {
	if s == nil {
		return "-"
	}
	return fmt.Sprintf("#%d (%d)", s.ID, s.FormatID)
}

func renderVariants(m *manifest.Manifest) string {
	rows := make([][]string, 0, len(m.Variants))
	for _, v := range m.Variants {
		rows = append(rows, []string{
			strconv.Itoa(v.ID),
			strconv.Itoa(v.Bandwidth),
			streamRef(v.Audio),
			streamRef(v.Video),
			v.Language,
			strconv.FormatBool(v.Primary),
		})
	}
	return renderTable(tableSpec{
		columns: []column{
			{"Variant", true}, {"Bandwidth", true}, {"Audio", false},
			{"Video", false}, {"Language", false}, {"Primary", false},
		},
		rows: rows,
	})
}

func renderStreams(m *manifest.Manifest, withIndex bool) string {
	columns := []column{
		{"Stream", true}, {"Type", false}, {"Format", true},
		{"Codecs", false}, {"Bandwidth", true}, {"Details", false},
	}
	if withIndex {
		columns = append(columns, column{"Segments", true})
	}
	var rows [][]string
	for _, s := range m.Streams() {
		row := []string{
			strconv.Itoa(s.ID),
			string(s.Type),
			strconv.Itoa(s.FormatID),
			s.Codecs,
			strconv.Itoa(s.Bandwidth),
			streamDetails(s),
		}
		if withIndex {
			count := "-"
			if ix, ok := s.SegmentIndex(); ok {
				count = strconv.Itoa(ix.Len())
			}
			row = append(row, count)
		}
		rows = append(rows, row)
	}
	return renderTable(tableSpec{columns: columns, rows: rows, groupBy: groupColumn(1)})
}

func streamDetails(s *manifest.Stream) string {
	var parts []string
	switch s.Type {
	case manifest.Audio:
		parts = append(parts, strings.Join(s.Roles, ","))
		if s.Language != "" {
			parts = append(parts, s.Language)
		}
		if s.Label != "" {
			parts = append(parts, s.Label)
		}
	case manifest.Video:
		parts = append(parts, fmt.Sprintf("%dx%d", s.Width, s.Height), s.HDR, s.ColorGamut)
	case manifest.Text:
		parts = append(parts, s.Language, s.Label)
	case manifest.Image:
		parts = append(parts, s.TilesLayout, fmt.Sprintf("%dx%d", s.Width, s.Height))
	}
	return strings.Join(parts, " ")
}
