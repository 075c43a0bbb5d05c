package main

import (
	"io/fs"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/claims-triage/internal/docstore"
	"github.com/sells-group/claims-triage/internal/ingest"
)

var indexDir string

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Chunk and embed policy documents into the retrieval index",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		dir := indexDir
		if dir == "" {
			dir = cfg.Retrieval.PolicyDir
		}

		var paths []string
		err = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				return nil
			}
			switch strings.ToLower(filepath.Ext(path)) {
			case ".md", ".txt", ".pdf":
				paths = append(paths, path)
			}
			return nil
		})
		if err != nil {
			return eris.Wrapf(err, "walk policy dir %s", dir)
		}
		if len(paths) == 0 {
			return eris.Errorf("no policy documents found in %s", dir)
		}

		chunker := docstore.NewChunker(cfg.Retrieval.ChunkSize, cfg.Retrieval.ChunkOverlap)
		total := 0

		for _, path := range paths {
			text, err := env.Extractor.ExtractText(ctx, path)
			if err != nil {
				return eris.Wrapf(err, "extract %s", path)
			}
			doc := ingest.Parse(path, text)

			name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
			docID := uuid.NewSHA1(uuid.NameSpaceOID, []byte(doc.ContentHash))
			chunks := chunker.Split(docID, name, "policy", path, doc.FullText)
			if len(chunks) == 0 {
				zap.L().Warn("empty policy document", zap.String("path", path))
				continue
			}

			texts := make([]string, len(chunks))
			for i, c := range chunks {
				texts[i] = c.Content
			}
			vectors, err := env.Embedder.EmbedBatch(ctx, texts)
			if err != nil {
				return eris.Wrapf(err, "embed %s", path)
			}
			if len(vectors) != len(chunks) {
				return eris.Errorf("embed %s: got %d vectors for %d chunks", path, len(vectors), len(chunks))
			}
			for i := range chunks {
				chunks[i].Vector = vectors[i]
			}

			if err := env.Store.SaveChunks(ctx, chunks); err != nil {
				return eris.Wrapf(err, "save chunks for %s", path)
			}
			if err := env.Index.Add(chunks); err != nil {
				return eris.Wrapf(err, "index chunks for %s", path)
			}

			zap.L().Info("indexed policy document",
				zap.String("path", path),
				zap.Int("chunks", len(chunks)),
			)
			total += len(chunks)
		}

		zap.L().Info("index complete",
			zap.Int("documents", len(paths)),
			zap.Int("chunks", total),
		)
		return nil
	},
}

func init() {
	indexCmd.Flags().StringVar(&indexDir, "dir", "", "policy document directory (default from config)")
	rootCmd.AddCommand(indexCmd)
}
