package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/aligator/mcrecover"
)

var extractCmd = &cobra.Command{
	Use:   "extract [--lost] <image> <dir>",
	Short: "Export the files of a card image into a directory",
	Long: `Export the files of a card image into a directory.
GameCube files are written as GCI, VMU files as raw VMS payloads.
With --lost the free blocks are scanned first and the found files are
exported as well.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		card, err := openCard(cmd, args[0])
		if err != nil {
			return err
		}

		if lost, _ := cmd.Flags().GetBool("lost"); lost {
			db, err := loadDatabase()
			if err != nil {
				return err
			}
			opts, err := scanOptions()
			if err != nil {
				return err
			}
			results, err := card.Scan(cmd.Context(), db, opts...)
			if err != nil {
				return err
			}
			card.AddLostFiles(results)
		}

		return extract(osFs, card, args[1])
	},
}

func init() {
	extractCmd.Flags().Bool("lost", false, "Scan for lost files and export them too")
	rootCmd.AddCommand(extractCmd)
}

// extract copies every file of the card view into dir.
func extract(fs afero.Fs, card *mcrecover.Card, dir string) error {
	if err := fs.MkdirAll(dir, 0755); err != nil {
		return err
	}

	view := card.Fs()
	names, err := afero.Glob(view, "*")
	if err != nil {
		return err
	}

	for _, name := range names {
		data, err := afero.ReadFile(view, name)
		if err != nil {
			return err
		}
		target := filepath.Join(dir, name)
		if err := afero.WriteFile(fs, target, data, 0644); err != nil {
			return err
		}
		log.Infof("wrote %s (%d bytes)", target, len(data))
	}
	fmt.Fprintf(os.Stdout, "%d files exported to %s\n", len(names), dir)
	return nil
}

