package cmds

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/go-go-golems/figaro/pkg/memory"
)

var TokensCmd = &cobra.Command{
	Use:   "tokens",
	Short: "Token utilities",
}

var tokensCountCmd = &cobra.Command{
	Use:   "count [text...]",
	Short: "Count tokens in the given text (or stdin)",
	RunE: func(cmd *cobra.Command, args []string) error {
		variant, _ := cmd.Flags().GetString("variant")

		text := strings.Join(args, " ")
		if text == "" {
			b, err := io.ReadAll(os.Stdin)
			if err != nil {
				return err
			}
			text = string(b)
		}

		counter, err := memory.NewTiktokenCounter(variant)
		if err != nil {
			return err
		}

		n, err := counter.Count(text)
		if err != nil {
			return err
		}

		budget, known := memory.BudgetForVariant(variant)
		fmt.Printf("%d tokens\n", n)
		if known {
			fmt.Printf("%d of %d context tokens (%d reserved for the response)\n",
				n, budget.ContextLen, budget.ResponseReservation)
		}

		return nil
	},
}

func init() {
	tokensCountCmd.Flags().String("variant", "gpt-4", "Model variant to tokenize for")
	TokensCmd.AddCommand(tokensCountCmd)
}
