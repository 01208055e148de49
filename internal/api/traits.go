package api

import (
	"bytes"
	"context"
	"fmt"
	"mime/multipart"
	"net/http"

	"github.com/nft-marketplace/client/internal/models"
)

type TraitTypeInput struct {
	Name   string `json:"name"`
	ZIndex int    `json:"zIndex"`
}

// FilePart is one file inside a multipart batch.
type FilePart struct {
	Name string
	Data []byte
}

type TraitValueInput struct {
	TraitTypeID string
	Value       string
	File        FilePart
}

type OneOfOneInput struct {
	Name string
	File FilePart
}

func (c *Client) CreateTraitTypes(ctx context.Context, collectionID string, items []TraitTypeInput) ([]models.TraitType, error) {
	payload := struct {
		CollectionID string           `json:"collectionId"`
		Data         []TraitTypeInput `json:"data"`
	}{collectionID, items}

	var out []models.TraitType
	if err := c.postJSON(ctx, "/api/v1/trait-types", payload, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) CreateTraitValues(ctx context.Context, collectionID string, items []TraitValueInput) ([]models.TraitValue, error) {
	r, err := multipartRequest("/api/v1/trait-values", func(w *multipart.Writer) error {
		if err := w.WriteField("collectionId", collectionID); err != nil {
			return err
		}
		for _, it := range items {
			if err := w.WriteField("traitTypeId", it.TraitTypeID); err != nil {
				return err
			}
			if err := w.WriteField("value", it.Value); err != nil {
				return err
			}
			if err := writeFile(w, "files", it.File); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	var out []models.TraitValue
	if err := c.do(ctx, r, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) CreateRecursiveInscriptions(ctx context.Context, collectionID string, items []models.RecursiveInscription) error {
	payload := struct {
		CollectionID string                        `json:"collectionId"`
		Data         []models.RecursiveInscription `json:"data"`
	}{collectionID, items}
	return c.postJSON(ctx, "/api/v1/collectibles/inscription/recursive", payload, nil)
}

func (c *Client) CreateOneOfOneEditions(ctx context.Context, collectionID string, items []OneOfOneInput) ([]models.OneOfOneEdition, error) {
	r, err := multipartRequest("/api/v1/collectibles/inscription/one-of-one", func(w *multipart.Writer) error {
		if err := w.WriteField("collectionId", collectionID); err != nil {
			return err
		}
		for _, it := range items {
			if err := w.WriteField("name", it.Name); err != nil {
				return err
			}
			if err := writeFile(w, "files", it.File); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	var out []models.OneOfOneEdition
	if err := c.do(ctx, r, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// multipartRequest buffers the whole form so a 401 replay can resend it.
func multipartRequest(path string, fill func(w *multipart.Writer) error) (request, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	if err := fill(w); err != nil {
		return request{}, fmt.Errorf("build multipart body: %w", err)
	}
	if err := w.Close(); err != nil {
		return request{}, err
	}
	return request{
		method:      http.MethodPost,
		path:        path,
		body:        buf.Bytes(),
		contentType: w.FormDataContentType(),
	}, nil
}

func writeFile(w *multipart.Writer, field string, f FilePart) error {
	part, err := w.CreateFormFile(field, f.Name)
	if err != nil {
		return err
	}
	_, err = part.Write(f.Data)
	return err
}
