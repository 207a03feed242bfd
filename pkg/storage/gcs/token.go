package gcs

import (
	"context"
	"fmt"
	"os"

	"github.com/angelmondragon/libraryhub-backend/pkg/config"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

const scope = "https://www.googleapis.com/auth/devstorage.read_write"

// tokenSourceFor picks credentials in this order: inline JSON, a key file,
// then Application Default Credentials (metadata server on GCP).
func tokenSourceFor(ctx context.Context, gcp config.GCPConfig) (oauth2.TokenSource, error) {
	raw := []byte(gcp.CredentialsJSON)
	if len(raw) == 0 && gcp.ApplicationCredentials != "" {
		var err error
		if raw, err = os.ReadFile(gcp.ApplicationCredentials); err != nil {
			return nil, fmt.Errorf("read credentials file: %w", err)
		}
	}

	var (
		creds *google.Credentials
		err   error
	)
	if len(raw) > 0 {
		creds, err = google.CredentialsFromJSON(ctx, raw, scope)
	} else {
		creds, err = google.FindDefaultCredentials(ctx, scope)
	}
	if err != nil {
		return nil, fmt.Errorf("gcs credentials: %w", err)
	}
	return creds.TokenSource, nil
}
