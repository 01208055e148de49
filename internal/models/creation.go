package models

type CreationStep int

const (
	StepCollectionDetails CreationStep = iota
	StepTraitUpload
	StepInscriptionPayment
	StepLaunch
)

func (s CreationStep) String() string {
	switch s {
	case StepCollectionDetails:
		return "collection_details"
	case StepTraitUpload:
		return "trait_upload"
	case StepInscriptionPayment:
		return "inscription_payment"
	case StepLaunch:
		return "launch"
	}
	return "unknown"
}

// Collection types accepted by the API.
const (
	CollectionTypeInscription = "INSCRIPTION"
	CollectionTypeRecursive   = "RECURSIVE_INSCRIPTION"
	CollectionTypeIPFS        = "IPFS"
)

type CollectionDetails struct {
	Name        string `json:"name" yaml:"name"`
	Symbol      string `json:"symbol" yaml:"symbol"`
	Description string `json:"description" yaml:"description"`
	Supply      int    `json:"supply" yaml:"supply"`
	Type        string `json:"type" yaml:"type"`
}

// TraitUploadInput points at the local files of a collection.
type TraitUploadInput struct {
	TraitsDir    string `json:"traitsDir" yaml:"traits_dir"`
	MetadataPath string `json:"metadataPath,omitempty" yaml:"metadata"`
	OneOfOneDir  string `json:"oneOfOneDir,omitempty" yaml:"one_of_one_dir"`
}

type InscriptionPayment struct {
	FeeRate float64 `json:"feeRate" yaml:"fee_rate"`
	// PayFromWallet sends the funding amount through the connected wallet;
	// otherwise the user pays the order address manually.
	PayFromWallet bool `json:"payFromWallet" yaml:"pay_from_wallet"`
}

// CreationFlow is the in-memory state of the create-collection wizard.
type CreationFlow struct {
	CurrentStep CreationStep       `json:"currentStep"`
	Collection  CollectionDetails  `json:"collection"`
	Traits      TraitUploadInput   `json:"traits"`
	Inscription InscriptionPayment `json:"inscription"`
}
