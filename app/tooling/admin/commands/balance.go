package commands

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log"
	"net/http"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/minichain/minichain/foundation/blockchain/signature"
	"github.com/spf13/cobra"
)

var balanceCmd = &cobra.Command{
	Use:   "balance [address]",
	Short: "Sum the spendable outputs for an address, defaulting to the configured key",
	Run:   balanceRun,
}

func init() {
	rootCmd.AddCommand(balanceCmd)
}

func balanceRun(cmd *cobra.Command, args []string) {
	var address string

	switch {
	case len(args) > 0:
		address = args[0]

	default:
		privateKey, err := crypto.LoadECDSA(getPrivateKeyPath())
		if err != nil {
			log.Fatal(err)
		}
		pubKey := hex.EncodeToString(crypto.CompressPubkey(&privateKey.PublicKey))
		address, err = signature.Address(pubKey)
		if err != nil {
			log.Fatal(err)
		}
	}

	fmt.Println("For Address:", address)

	resp, err := http.Get(fmt.Sprintf("%s/v1/utxos/%s", url, address))
	if err != nil {
		log.Fatal(err)
	}
	defer resp.Body.Close()

	var list struct {
		UTXOs []struct {
			TxID   string `json:"txid"`
			Index  int    `json:"index"`
			Amount uint64 `json:"amount"`
		} `json:"utxos"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		log.Fatal(err)
	}

	var total uint64
	for _, utxo := range list.UTXOs {
		total += utxo.Amount
	}

	fmt.Println("outputs:", len(list.UTXOs))
	fmt.Println("balance:", total)
}
