package main

import (
	"context"

	"github.com/ariefcatur/go-stock-reservations/internal/memstore"
	"github.com/ariefcatur/go-stock-reservations/internal/postgres"
	"github.com/ariefcatur/go-stock-reservations/internal/reservation"
	"github.com/shopspring/decimal"
)

// Demo data for local runs: one store with two items and a two-line cart
// for user "demo-user".
var (
	demoStore = reservation.Store{ID: "demo-store", Name: "Demo Bakery", Address: "1 Main St", OpenState: true}
	demoUser  = reservation.User{ID: "demo-user"}
	demoItems = []reservation.Item{
		{ID: "demo-croissant", StoreID: "demo-store", Name: "Croissant", QuantityAvailable: 20, SalePrice: decimal.RequireFromString("2.50"), OnSale: true},
		{ID: "demo-baguette", StoreID: "demo-store", Name: "Baguette", QuantityAvailable: 5, SalePrice: decimal.RequireFromString("3.00"), OnSale: true},
	}
	demoCart = []reservation.CartEntry{
		{ID: "demo-cart-1", UserID: "demo-user", ItemID: "demo-croissant", StoreID: "demo-store", ItemCount: 4, Active: true},
		{ID: "demo-cart-2", UserID: "demo-user", ItemID: "demo-baguette", StoreID: "demo-store", ItemCount: 1, Active: true},
	}
	demoToken = "demo-device-token"
)

func seedMemory(s *memstore.Store) {
	s.PutStore(demoStore)
	s.PutUser(demoUser)
	for _, it := range demoItems {
		s.PutItem(it)
	}
	for _, c := range demoCart {
		s.PutCartEntry(c)
	}
	s.AddDeviceToken(demoStore.ID, demoToken)
}

func seedPostgres(ctx context.Context, s *postgres.Store) error {
	if err := s.PutStore(ctx, demoStore); err != nil {
		return err
	}
	if err := s.PutUser(ctx, demoUser); err != nil {
		return err
	}
	for _, it := range demoItems {
		if err := s.PutItem(ctx, it); err != nil {
			return err
		}
	}
	for _, c := range demoCart {
		if err := s.PutCartEntry(ctx, c); err != nil {
			return err
		}
	}
	return s.AddDeviceToken(ctx, demoStore.ID, demoToken)
}
