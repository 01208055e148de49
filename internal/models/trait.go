package models

type TraitType struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	ZIndex       int    `json:"zIndex"`
	CollectionID string `json:"collectionId"`
}

type TraitValue struct {
	ID          string `json:"id"`
	Value       string `json:"value"`
	TraitTypeID string `json:"traitTypeId"`
	FileKey     string `json:"fileKey,omitempty"`
}

// RecursiveInscription is a composite record built from one metadata entry.
type RecursiveInscription struct {
	Name   string                `json:"name"`
	Traits []RecursiveTraitValue `json:"traits"`
}

type RecursiveTraitValue struct {
	TraitTypeID  string `json:"traitTypeId"`
	TraitValueID string `json:"traitValueId"`
}

type OneOfOneEdition struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	FileKey string `json:"fileKey,omitempty"`
}
