package model

import (
	"encoding/json"
	"math/big"
	"testing"
)

func TestCollectFeesEventDataJSONStringFields(t *testing.T) {
	payload := CollectFeesEventData{
		FeesToVault0:    "12345678901234567890123",
		FeesToVault1:    "1",
		FeesToProtocol0: "650000",
		FeesToProtocol1: "0",
		FeesToManager0:  "0",
		FeesToManager1:  "0",
	}

	data, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}

	var decoded map[string]interface{}
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}

	for _, key := range []string{"fees_to_vault0", "fees_to_protocol0", "fees_to_manager1"} {
		if _, ok := decoded[key].(string); !ok {
			t.Fatalf("%s should be string", key)
		}
	}
}

func TestEventRecordOmitsEmptyPoolMeta(t *testing.T) {
	record := EventRecord{
		ChainID:   1337,
		Address:   "0x1111111111111111111111111111111111111111",
		EventName: EventDeposit,
		Decoded:   json.RawMessage(`{"shares":"1"}`),
	}

	data, err := json.Marshal(record)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}

	var decoded map[string]interface{}
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if _, ok := decoded["pool_meta"]; ok {
		t.Fatalf("pool_meta should be omitted")
	}
	inner, ok := decoded["decoded"].(map[string]interface{})
	if !ok || inner["shares"] != "1" {
		t.Fatalf("decoded payload not embedded: %v", decoded["decoded"])
	}
}

func TestTokenMetaFormatAmount(t *testing.T) {
	usdc := TokenMeta{Symbol: "USDC", Decimals: 6}
	amount, _ := new(big.Int).SetString("21000000000", 10)
	if got := usdc.FormatAmount(amount); got != "21000" {
		t.Fatalf("format mismatch: %s", got)
	}
	if got := usdc.FormatAmount(big.NewInt(1)); got != "0.000001" {
		t.Fatalf("format mismatch: %s", got)
	}
	if got := usdc.FormatAmount(nil); got != "0" {
		t.Fatalf("nil amount: %s", got)
	}
}
