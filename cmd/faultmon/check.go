package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"faultguard/ecc"
)

var checkCmd = &cobra.Command{
	Use:   "check <data-hex> [check-hex]",
	Short: "Run one word through the ECC codec",
	Long: `Encode or decode a 64-bit word.

With one argument, prints the check code for the word. With two, decodes
the word against the given check code and prints the classification, the
corrected word, and the flipped bit position when one was corrected.

Examples:
  faultmon check a5a5f00ddeadbeef
  faultmon check a5a5f00ddeadbeee 4c`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runCheck,
}

func init() {
	rootCmd.AddCommand(checkCmd)
}

func runCheck(cmd *cobra.Command, args []string) error {
	data, err := strconv.ParseUint(args[0], 16, 64)
	if err != nil {
		return fmt.Errorf("parse data word: %w", err)
	}
	if len(args) == 1 {
		fmt.Printf("data  %016x\ncheck %02x\n", data, ecc.Encode(data))
		return nil
	}

	check, err := strconv.ParseUint(args[1], 16, 8)
	if err != nil {
		return fmt.Errorf("parse check code: %w", err)
	}
	corrected, res := ecc.Decode(data, uint8(check))
	fmt.Printf("class %s\n", res.Class)
	switch res.Class {
	case ecc.ClassNone:
		fmt.Printf("data  %016x\n", data)
	case ecc.ClassSingleBit:
		if res.Pos > 0 {
			fmt.Printf("data  %016x (bit %d corrected)\n", corrected, res.Pos)
		} else {
			fmt.Printf("data  %016x (check code error)\n", corrected)
		}
	case ecc.ClassMultiBit:
		fmt.Println("data  not correctable")
	}
	return nil
}
