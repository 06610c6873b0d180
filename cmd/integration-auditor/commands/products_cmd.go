package commands

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/catherinevee/integration-auditor/internal/rulesconfig"
)

var (
	productsList bool
	productsName string
	productVersion string
)

var productsCmd = &cobra.Command{
	Use:   "products",
	Short: "List configured products or show one product's effective business rules",
	RunE:  runProducts,
}

func init() {
	rootCmd.AddCommand(productsCmd)
	productsCmd.Flags().BoolVar(&productsList, "list", false, "list every product with an override directory")
	productsCmd.Flags().StringVar(&productsName, "product", "", "show effective business rules for this product")
	productsCmd.Flags().StringVar(&productVersion, "version", "", "version to resolve --product against")
}

func runProducts(cmd *cobra.Command, args []string) error {
	if productsName != "" {
		rules, err := rulesconfig.LoadForProduct(configDir, productsName, productVersion)
		if err != nil {
			return exitErr(2, err)
		}
		data, err := json.MarshalIndent(rules, "", "  ")
		if err != nil {
			return exitErr(2, err)
		}
		fmt.Println(string(data))
		return nil
	}

	products, err := rulesconfig.ListProducts(configDir)
	if err != nil {
		return exitErr(2, err)
	}
	if len(products) == 0 {
		fmt.Println("no product overrides configured")
		return nil
	}
	for _, p := range products {
		fmt.Println(p)
	}
	return nil
}
