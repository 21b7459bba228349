package bip39

import (
	"strings"
	"testing"
)

func TestGenerateMnemonic(t *testing.T) {
	service := NewMnemonicService()

	// 12 个单词 (128 bits)
	mnemonic12, err := service.GenerateMnemonic(128)
	if err != nil {
		t.Fatalf("生成 12 词助记词失败: %v", err)
	}
	if n := len(strings.Fields(mnemonic12)); n != 12 {
		t.Errorf("期望 12 个单词，得到 %d", n)
	}
	if !service.ValidateMnemonic(mnemonic12) {
		t.Errorf("生成的 12 词助记词无效")
	}

	// 24 个单词 (256 bits)
	mnemonic24, err := service.GenerateMnemonic(256)
	if err != nil {
		t.Fatalf("生成 24 词助记词失败: %v", err)
	}
	if !service.ValidateMnemonic(mnemonic24) {
		t.Errorf("生成的 24 词助记词无效")
	}
}

func TestValidateMnemonic(t *testing.T) {
	service := NewMnemonicService()

	messy := "  Bottom drive obey lake curtain smoke basket hold race lonely fit walk \n"
	if !service.ValidateMnemonic(messy) {
		t.Errorf("多余空白和大写应该被规范化")
	}

	invalid := "hello world invalid mnemonic phrase designed to fail validation check"
	if service.ValidateMnemonic(invalid) {
		t.Errorf("期望验证失败，但验证通过了")
	}
}
