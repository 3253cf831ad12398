package main

import (
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"

	"github.com/J-Pabon/ouisync"
	"github.com/J-Pabon/ouisync/config"
	"github.com/J-Pabon/ouisync/object"
	"github.com/J-Pabon/ouisync/snapshot"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const configFileName = "config.yaml"

var rootDir string

func main() {
	root := &cobra.Command{
		Use:   "ouisync",
		Short: "Inspect and manage a replication repository",
	}
	root.PersistentFlags().StringVarP(&rootDir, "root", "r", ".", "repository root directory")
	root.AddCommand(initCmd(), showCmd(), exportCmd())

	err := root.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func openRepository() (*ouisync.Repository, error) {
	opts, err := config.Load(filepath.Join(rootDir, configFileName))
	if err != nil {
		return nil, err
	}
	log, err := zap.NewProduction()
	if err != nil {
		return nil, err
	}
	return ouisync.Open(opts, log)
}

func initCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Initialize a repository",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			err := os.MkdirAll(rootDir, 0o755)
			if err != nil {
				return err
			}
			opts := config.Default(rootDir)
			err = opts.Save(filepath.Join(rootDir, configFileName))
			if err != nil {
				return err
			}
			_, err = ouisync.Open(opts, zap.NewNop())
			return err
		},
	}
}

func showCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <user-id>",
		Short: "Show the state of a peer's branch",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			user, err := object.UserIDFromHex(args[0])
			if err != nil {
				return err
			}
			repo, err := openRepository()
			if err != nil {
				return err
			}
			b, err := repo.LoadRemoteBranch(cmd.Context(), user)
			if err != nil {
				return err
			}
			fmt.Printf("commit root: %s\n", b.Commit().RootID)
			fmt.Println("missing:")
			for id, parents := range b.MissingObjects() {
				fmt.Printf("  %s (%d parents waiting)\n", id, len(parents))
			}
			fmt.Println("incomplete:")
			for id, waiting := range b.IncompleteObjects() {
				fmt.Printf("  %s (%d children waiting)\n", id, len(waiting))
			}
			fmt.Println("complete:")
			for id := range b.CompleteObjects() {
				fmt.Printf("  %s\n", id)
			}
			return nil
		},
	}
}

func exportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "export <snapshot-tag> <out>",
		Short: "Export a snapshot's complete subtrees as a CAR archive",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			tag, err := decodeTag(args[0])
			if err != nil {
				return err
			}
			repo, err := openRepository()
			if err != nil {
				return err
			}
			snap, err := repo.LoadSnapshot(cmd.Context(), tag)
			if err != nil {
				return err
			}
			out, err := os.Create(args[1])
			if err != nil {
				return err
			}
			defer out.Close()
			return snap.Export(cmd.Context(), out)
		},
	}
}

func decodeTag(s string) (snapshot.NameTag, error) {
	var tag snapshot.NameTag
	data, err := hex.DecodeString(s)
	if err != nil {
		return tag, err
	}
	if len(data) != snapshot.NameTagSize {
		return tag, fmt.Errorf("invalid name tag length %d", len(data))
	}
	copy(tag[:], data)
	return tag, nil
}
