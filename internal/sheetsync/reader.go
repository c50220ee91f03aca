// Package sheetsync keeps the remote spreadsheet mirror in step with the local
// collection: an ordered outbox for the write path and a Sheets API reader for
// the full read-sync.
package sheetsync

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/oauth2/jwt"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"
)

var ErrNoCredentials = errors.New("no sheets credentials configured")

// Source identifies the spreadsheet to read and how to authenticate. An API
// key wins over service account fields.
type Source struct {
	SpreadsheetID string
	APIKey        string
	ClientEmail   string
	PrivateKey    string
	PrivateKeyID  string
	TokenURI      string
}

func (s Source) Configured() bool {
	return s.SpreadsheetID != "" && (s.APIKey != "" || (s.ClientEmail != "" && s.PrivateKey != ""))
}

// Reader returns the raw cell grid for a range.
type Reader interface {
	ReadValues(ctx context.Context, spreadsheetID, rng string) ([][]interface{}, error)
}

type SheetsReader struct {
	service *sheets.Service
}

// Dial builds a Sheets client for src. When opts are given they replace the
// credential options derived from src.
func Dial(ctx context.Context, src Source, opts ...option.ClientOption) (*SheetsReader, error) {
	if len(opts) == 0 {
		var err error
		if opts, err = clientOptions(ctx, src); err != nil {
			return nil, err
		}
	}
	srv, err := sheets.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("unable to create sheets service: %w", err)
	}
	return &SheetsReader{service: srv}, nil
}

func clientOptions(ctx context.Context, src Source) ([]option.ClientOption, error) {
	switch {
	case src.APIKey != "":
		return []option.ClientOption{option.WithAPIKey(src.APIKey)}, nil
	case src.ClientEmail != "" && src.PrivateKey != "":
		conf := &jwt.Config{
			Email:        src.ClientEmail,
			PrivateKey:   []byte(src.PrivateKey),
			PrivateKeyID: src.PrivateKeyID,
			TokenURL:     src.TokenURI,
			Scopes:       []string{sheets.SpreadsheetsReadonlyScope},
		}
		return []option.ClientOption{option.WithHTTPClient(conf.Client(ctx))}, nil
	default:
		return nil, ErrNoCredentials
	}
}

func (r *SheetsReader) ReadValues(ctx context.Context, spreadsheetID, rng string) ([][]interface{}, error) {
	resp, err := r.service.Spreadsheets.Values.Get(spreadsheetID, rng).Context(ctx).Do()
	if err != nil {
		return nil, readError(err)
	}
	return resp.Values, nil
}

// readError keeps only the API's own message when there is one.
func readError(err error) error {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) && gerr.Message != "" {
		return fmt.Errorf("unable to retrieve data from sheet: %s", gerr.Message)
	}
	return fmt.Errorf("unable to retrieve data from sheet: %w", err)
}
