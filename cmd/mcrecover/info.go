package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/aligator/mcrecover"
)

var infoCmd = &cobra.Command{
	Use:   "info <image>",
	Short: "Print the header, table copies and file list of a card image",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		card, err := openCard(cmd, args[0])
		if err != nil {
			return err
		}
		printInfo(os.Stdout, card)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(infoCmd)
}

func printInfo(out io.Writer, card *mcrecover.Card) {
	g := card.Geometry()
	h := card.Header()

	fmt.Fprintf(out, "Format:      %v\n", card.Format())
	fmt.Fprintf(out, "Encoding:    %v\n", card.Encoding())
	fmt.Fprintf(out, "Blocks:      %d x %d bytes, %d free\n", g.NumBlocks, g.BlockSize, card.FreeBlocks())
	if card.Format() == mcrecover.FormatGCN {
		stored, computed := card.HeaderChecksum()
		fmt.Fprintf(out, "Size:        %d Mbit\n", h.SizeMbits)
		fmt.Fprintf(out, "Formatted:   %v\n", h.FormatTime.Format("2006-01-02 15:04:05"))
		fmt.Fprintf(out, "Header:      stored %v, computed %v\n", stored, computed)
	}
	fmt.Fprintln(out)

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TABLE\tCOPY\tACTIVE\tVALID\tCOUNTER\tSTORED\tCOMPUTED\tREASON")
	printCopies(w, "directory", card.DirCopies(), card.ActiveDatIdx())
	printCopies(w, "block table", card.BatCopies(), card.ActiveBatIdx())
	w.Flush()
	fmt.Fprintln(out)

	printFiles(out, card.Files())
}

func printCopies(w io.Writer, table string, copies []mcrecover.CopyStatus, active int) {
	for _, c := range copies {
		mark := ""
		if c.Index == active {
			mark = "*"
		}
		fmt.Fprintf(w, "%s\t%d\t%s\t%t\t%d\t%v\t%v\t%s\n",
			table, c.Index, mark, c.Valid, c.Counter, c.Stored, c.Computed, c.Reason)
	}
}

func printFiles(out io.Writer, files []*mcrecover.File) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	defer w.Flush()

	fmt.Fprintln(w, "ID\tFILENAME\tBLOCKS\tSTART\tFLAGS\tLOST\tCOMMENT")
	for _, f := range files {
		e := f.Entry()
		gameDesc, fileDesc := f.Comment()
		lost := ""
		if f.Recovered() {
			lost = "yes"
		}
		fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%v\t%s\t%s / %s\n",
			e.ID(), f.Filename(), len(f.Blocks()), e.Block, f.Flags(), lost, gameDesc, fileDesc)
	}
}
