package main

import (
	"encoding/json"
	"fmt"
	"math/big"
	"os"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/victorlabs/vicmarket/params"
	"github.com/victorlabs/vicmarket/pkg/api"
	"github.com/victorlabs/vicmarket/pkg/crypto"
	"github.com/victorlabs/vicmarket/pkg/market"
)

func main() {
	// Step 1: Generate or load key
	var signer *crypto.Signer
	var err error
	if key := os.Getenv("SELLER_PRIVATE_KEY"); key != "" {
		signer, err = crypto.FromPrivateKeyHex(key)
	} else {
		fmt.Println("Generating new keypair...")
		signer, err = crypto.GenerateKey()
	}
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Address: %s\n", signer.Address().Hex())
	fmt.Printf("Private Key: %s (KEEP SECRET!)\n\n", signer.PrivateKeyHex())

	// Step 2: Create a lazy-mint listing (tokenId 0 + uri set)
	order := &market.Order{
		Seller:          signer.Address(),
		ContractAddress: common.HexToAddress("0x0000000000000000000000000000000000000001"),
		RoyaltyFee:      250, // 2.5%
		RoyaltyReceiver: signer.Address(),
		PaymentToken:    market.NativeCurrency,
		BasePrice:       big.NewInt(10_000_000_000_000),
		ListingTime:     time.Now().Unix(),
		ExpirationTime:  0, // No expiry
		Nonce:           1,
		TokenID:         big.NewInt(0),
		URI:             "ipfs://QmSampleMetadata",
		ObjID:           "listing-0001",
	}

	fmt.Println("Listing Details:")
	fmt.Printf("  Seller: %s\n", order.Seller.Hex())
	fmt.Printf("  Collection: %s\n", order.ContractAddress.Hex())
	fmt.Printf("  Price: %s (native)\n", order.BasePrice.String())
	fmt.Printf("  Royalty: %d bps -> %s\n", order.RoyaltyFee, order.RoyaltyReceiver.Hex())
	fmt.Printf("  Lazy mint: %v\n", order.IsLazyMint())
	fmt.Printf("  URI: %s\n\n", order.URI)

	// Step 3: Sign with EIP-712
	cfg := params.Default()
	eip712Signer := crypto.NewEIP712Signer(crypto.EIP712Domain{
		Name:    cfg.Domain.Name,
		Version: cfg.Domain.Version,
		ChainID: big.NewInt(cfg.Domain.ChainID),
	})

	signature, err := eip712Signer.SignOrder(signer, order.ToEIP712())
	if err != nil {
		fmt.Printf("Error signing: %v\n", err)
		os.Exit(1)
	}
	order.Signature = signature

	fmt.Printf("Signature: 0x%x\n\n", signature)

	// Step 4: Verify signature
	fmt.Println("Verifying signature...")
	valid, err := eip712Signer.VerifyOrderSignature(order.ToEIP712(), signature)
	if err != nil {
		fmt.Printf("Error verifying: %v\n", err)
		os.Exit(1)
	}
	if !valid {
		fmt.Println("FAIL: recovered signer does not match seller")
		os.Exit(1)
	}
	fmt.Println("OK: signature recovers to seller")

	// Step 5: Build the buy request a client would submit
	req := api.BuyRequest{
		Buyer:         "0x0000000000000000000000000000000000000002",
		AssetContract: order.ContractAddress.Hex(),
		TokenID:       order.TokenID.String(),
		ExpectedPrice: order.BasePrice.String(),
		Value:         order.BasePrice.String(),
		Order: api.OrderPayload{
			Seller:          order.Seller.Hex(),
			ContractAddress: order.ContractAddress.Hex(),
			RoyaltyFee:      order.RoyaltyFee,
			RoyaltyReceiver: order.RoyaltyReceiver.Hex(),
			PaymentToken:    order.PaymentToken.Hex(),
			BasePrice:       order.BasePrice.String(),
			ListingTime:     order.ListingTime,
			ExpirationTime:  order.ExpirationTime,
			Nonce:           order.Nonce,
			TokenID:         order.TokenID.String(),
			Signature:       fmt.Sprintf("0x%x", signature),
			URI:             order.URI,
			ObjID:           order.ObjID,
		},
	}

	reqJSON, err := json.MarshalIndent(req, "", "  ")
	if err != nil {
		fmt.Printf("Error marshaling JSON: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("\nTo settle this listing against vicmarketd:")
	fmt.Println("  POST http://localhost:8080/api/v1/buy")
	fmt.Println("  Content-Type: application/json")
	fmt.Println("  Body:")
	fmt.Println(string(reqJSON))
}
