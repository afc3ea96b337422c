package models

import "strings"

// AddonPackage is a one-time credit top-up. Credits are fixed per package and
// added on top of the monthly balances; they never expire and are never reset
// by a subscription reseed.
type AddonPackage struct {
	ID                string
	Name              string
	ImageCredits      int
	VideoAudioCredits int
	PriceUSD          string
	PriceCNY          string
}

var AddonPackages = []AddonPackage{
	{
		ID:                "starter",
		Name:              "Starter",
		ImageCredits:      50,
		VideoAudioCredits: 10,
		PriceUSD:          "$4.99",
		PriceCNY:          "￥19.90",
	},
	{
		ID:                "standard",
		Name:              "Standard",
		ImageCredits:      150,
		VideoAudioCredits: 30,
		PriceUSD:          "$12.99",
		PriceCNY:          "￥49.90",
	},
	{
		ID:                "premium",
		Name:              "Premium",
		ImageCredits:      400,
		VideoAudioCredits: 80,
		PriceUSD:          "$29.99",
		PriceCNY:          "￥109.90",
	},
}

func GetAddonPackageByID(packageID string) (AddonPackage, bool) {
	id := strings.ToLower(strings.TrimSpace(packageID))
	for _, p := range AddonPackages {
		if p.ID == id {
			return p, true
		}
	}
	return AddonPackage{}, false
}
