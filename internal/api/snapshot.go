package api

import "github.com/rawblock/tradeloop-engine/pkg/models"

// walletRequest and itemRequest are the wire shapes external callers post;
// they mirror models.Wallet/models.Item but with JSON-friendly slices
// instead of set-shaped maps.
type walletRequest struct {
	ID                models.WalletID       `json:"id"`
	Owned             []models.ItemID       `json:"owned"`
	WantedItems       []models.ItemID       `json:"wantedItems"`
	WantedCollections []models.CollectionID `json:"wantedCollections"`
	RejectedItems     []models.ItemID       `json:"rejectedItems"`
	RejectedWallets   []models.WalletID     `json:"rejectedWallets"`
}

type itemRequest struct {
	ID         models.ItemID       `json:"id"`
	Owner      models.WalletID     `json:"owner"`
	Collection models.CollectionID `json:"collection"`
	FloorPrice *float64            `json:"floorPrice"`
}

type snapshotRequest struct {
	Wallets []walletRequest `json:"wallets"`
	Items   []itemRequest   `json:"items"`
}

func (s snapshotRequest) toSnapshot() *models.Snapshot {
	snap := models.NewSnapshot()

	for _, wr := range s.Wallets {
		w := models.NewWallet(wr.ID)
		for _, id := range wr.Owned {
			w.Owned[id] = struct{}{}
		}
		for _, id := range wr.WantedItems {
			w.WantedItems[id] = struct{}{}
		}
		for _, id := range wr.WantedCollections {
			w.WantedCollections[id] = struct{}{}
		}
		if len(wr.RejectedItems) > 0 || len(wr.RejectedWallets) > 0 {
			rej := &models.RejectionSet{
				Items:   make(map[models.ItemID]struct{}),
				Wallets: make(map[models.WalletID]struct{}),
			}
			for _, id := range wr.RejectedItems {
				rej.Items[id] = struct{}{}
			}
			for _, id := range wr.RejectedWallets {
				rej.Wallets[id] = struct{}{}
			}
			w.Rejections = rej
		}
		snap.Wallets[wr.ID] = w
	}

	for _, ir := range s.Items {
		snap.Items[ir.ID] = &models.Item{
			ID:         ir.ID,
			Owner:      ir.Owner,
			Collection: ir.Collection,
			FloorPrice: ir.FloorPrice,
		}
	}

	return snap
}
