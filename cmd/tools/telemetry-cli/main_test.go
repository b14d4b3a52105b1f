package main

import (
	"testing"

	"github.com/annel0/flight-telemetry/client"
)

func TestDisplayNameFallsBackToID(t *testing.T) {
	named := &client.Vessel{ID: "vessel-1", Name: "Orbiter One"}
	if got := displayName(named); got != "Orbiter One" {
		t.Errorf("Ожидалось имя судна, получено %q", got)
	}

	// Хэндл по идентификатору не знает имени
	byID := &client.Vessel{ID: "vessel-1"}
	if got := displayName(byID); got != "vessel-1" {
		t.Errorf("Ожидался идентификатор судна, получено %q", got)
	}
}
