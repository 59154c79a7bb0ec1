package main

import (
	"context"
	"fmt"
	"os"

	"docchat/internal/storage"

	"github.com/spf13/cobra"
)

func docsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "docs",
		Short: "Manage stored documents",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List stored documents, most recently accessed first",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := loadConfig()
			store, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer store.Close()

			docs, err := store.ListDocuments(context.Background())
			if err != nil {
				return err
			}
			if len(docs) == 0 {
				fmt.Println("no documents stored")
				return nil
			}
			for _, d := range docs {
				fmt.Printf("%s  %-30s  %.2f MB  %.1fx  accessed %s\n",
					d.ID, d.Filename, d.SizeMB, d.CompressionRatio,
					d.LastAccessed.Format("2006-01-02 15:04"))
			}
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "rm [id]",
		Short: "Delete a document and its conversations",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := loadConfig()
			store, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer store.Close()

			ok, err := store.DeleteDocument(context.Background(), args[0])
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("no document with id %s", args[0])
			}
			logger.Info("document deleted", "id", args[0])
			return nil
		},
	})

	return cmd
}

func statsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show storage usage against the quota",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := loadConfig()
			store, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer store.Close()

			stats, err := store.StorageStats(context.Background())
			if err != nil {
				return err
			}
			fmt.Printf("documents:     %d\n", stats.DocumentCount)
			fmt.Printf("conversations: %d\n", stats.ConversationCount)
			fmt.Printf("original:      %.2f MB\n", stats.TotalSizeMB)
			fmt.Printf("compressed:    %.2f MB (%.1fx)\n", stats.CompressedSizeMB, stats.CompressionRatio)
			fmt.Printf("quota:         %.1f%% of %.0f MB\n", stats.UsagePercent, stats.StorageLimitMB)
			return nil
		},
	}
}

func cleanupCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cleanup",
		Short: "Remove documents not accessed within the TTL",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := loadConfig()
			store, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer store.Close()

			removed, err := store.CleanupOldData(context.Background())
			if err != nil {
				return err
			}
			fmt.Printf("removed %d expired document(s)\n", removed)
			return nil
		},
	}
}

func exportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "export [file]",
		Short: "Export all documents and conversations to a JSON snapshot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := loadConfig()
			store, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer store.Close()

			mgr, ok := store.(*storage.Manager)
			if !ok {
				return fmt.Errorf("export is only supported on the memory backend; copy the sqlite file instead")
			}
			data, err := mgr.ExportJSON()
			if err != nil {
				return err
			}
			if err := os.WriteFile(args[0], data, 0o644); err != nil {
				return err
			}
			logger.Info("snapshot written", "file", args[0], "bytes", len(data))
			return nil
		},
	}
}

func importCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import [file]",
		Short: "Replace the store contents with a JSON snapshot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := loadConfig()
			store, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer store.Close()

			mgr, ok := store.(*storage.Manager)
			if !ok {
				return fmt.Errorf("import is only supported on the memory backend")
			}
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			return mgr.ImportJSON(data)
		},
	}
}
