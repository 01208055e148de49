package dto

type ConnectRequest struct {
	LayerID   string `json:"layer_id"`
	IsLinking bool   `json:"is_linking"`
}

type SwitchLayerRequest struct {
	LayerID string `json:"layer_id"`
}

type StartUploadRequest struct {
	CollectionID string `json:"collection_id"`
	OrderID      string `json:"order_id,omitempty"` // enables the mint trigger
	TraitsDir    string `json:"traits_dir,omitempty"`
	MetadataPath string `json:"metadata_path,omitempty"`
	OneOfOneDir  string `json:"one_of_one_dir,omitempty"`
}

type CollectionDetailsRequest struct {
	Name        string `json:"name"`
	Symbol      string `json:"symbol"`
	Description string `json:"description,omitempty"`
	Supply      int    `json:"supply"`
	Type        string `json:"type,omitempty"`
}

type TraitUploadRequest struct {
	TraitsDir    string `json:"traits_dir,omitempty"`
	MetadataPath string `json:"metadata_path,omitempty"`
	OneOfOneDir  string `json:"one_of_one_dir,omitempty"`
}

type InscriptionPaymentRequest struct {
	FeeRate       float64 `json:"fee_rate"`
	PayFromWallet bool    `json:"pay_from_wallet"`
}
