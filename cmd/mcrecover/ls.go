package main

import (
	"fmt"
	"os"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"
)

var lsCmd = &cobra.Command{
	Use:   "ls <image>",
	Short: "List the files of a card image as they would be exported",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		card, err := openCard(cmd, args[0])
		if err != nil {
			return err
		}

		return afero.Walk(card.Fs(), ".", func(path string, info os.FileInfo, err error) error {
			if err != nil {
				return err
			}
			if info.IsDir() {
				return nil
			}
			fmt.Printf("%8d  %s  %s\n", info.Size(), info.ModTime().Format("2006-01-02 15:04"), path)
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(lsCmd)
}
