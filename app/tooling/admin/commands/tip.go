package commands

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"

	"github.com/minichain/minichain/foundation/blockchain/database"
	"github.com/spf13/cobra"
)

var tipCmd = &cobra.Command{
	Use:   "tip",
	Short: "Print the node's current tip",
	Run:   tipRun,
}

func init() {
	rootCmd.AddCommand(tipCmd)
}

func tipRun(cmd *cobra.Command, args []string) {
	resp, err := http.Get(fmt.Sprintf("%s/v1/tip", url))
	if err != nil {
		log.Fatal(err)
	}
	defer resp.Body.Close()

	var tip *database.Block
	if err := json.NewDecoder(resp.Body).Decode(&tip); err != nil {
		log.Fatal(err)
	}

	if tip == nil {
		fmt.Println("chain is empty")
		return
	}

	fmt.Println("height :", tip.Header.Index)
	fmt.Println("hash   :", tip.Hash())
	fmt.Println("bits   :", fmt.Sprintf("%08x", tip.Header.Bits))
	fmt.Println("txs    :", len(tip.Txs))
}
