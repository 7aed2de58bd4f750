package shop

import "time"

// Settings tunes the sell cycle and the menu driver. The zero value is not
// usable; start from DefaultSettings.
type Settings struct {
	// Item is the inventory item name to sell and Label the name used in
	// whispers. ItemPattern also matches display names, case-insensitively.
	Item        string `yaml:"item"`
	Label       string `yaml:"label"`
	ItemPattern string `yaml:"itemPattern"`

	Recipient      string `yaml:"recipient"`
	SellCommand    string `yaml:"sellCommand"`
	BalanceCommand string `yaml:"balanceCommand"`
	PayCommand     string `yaml:"payCommand"`

	StagingSlot int `yaml:"stagingSlot"`
	HotbarSlot  int `yaml:"hotbarSlot"`

	Period         time.Duration `yaml:"period"`
	SettleDelay    time.Duration `yaml:"settleDelay"`
	BalanceTimeout time.Duration `yaml:"balanceTimeout"`

	CategoryTitle  string   `yaml:"categoryTitle"`
	ConfirmTitles  []string `yaml:"confirmTitles"`
	ConfirmItem    string   `yaml:"confirmItem"`
	ConfirmPattern string   `yaml:"confirmPattern"`
	CaptureLines   int      `yaml:"captureLines"`
}

func DefaultSettings() Settings {
	return Settings{
		Item:           "cactus",
		Label:          "Cactus",
		ItemPattern:    "cactus",
		Recipient:      "zlkm_",
		SellCommand:    "/sell hand",
		BalanceCommand: "/bal",
		PayCommand:     "/pay",
		StagingSlot:    36,
		HotbarSlot:     0,
		Period:         5 * time.Minute,
		SettleDelay:    3 * time.Second,
		BalanceTimeout: 5 * time.Second,
		CategoryTitle:  "ꜰᴀʀᴍ ᴀɴᴅ ꜰᴏᴏᴅ [ᴘᴀɢᴇ 1/5]",
		ConfirmTitles:  []string{"Selling (Cactus)", "cactus"},
		ConfirmItem:    "ender_chest",
		ConfirmPattern: "ender.?chest",
		CaptureLines:   5,
	}
}
