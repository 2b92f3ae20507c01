package secrets

import (
	"context"
	"encoding/base64"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/kms"
	"go.uber.org/zap"

	"saferental-service/internal/config"
	"saferental-service/internal/util"
)

// LoadSigningSecret resolves the HMAC secret for the file gateway. Either the
// plaintext secret is supplied directly, or a KMS-encrypted ciphertext is
// decrypted at startup. There is no fallback default; config validation
// already guarantees one of the two is set.
func LoadSigningSecret(ctx context.Context, cfg *config.Config) ([]byte, error) {
	if cfg.Files.SigningSecret != "" {
		return []byte(cfg.Files.SigningSecret), nil
	}

	ciphertext, err := base64.StdEncoding.DecodeString(cfg.Files.EncryptedSecret)
	if err != nil {
		return nil, fmt.Errorf("failed to decode signing secret ciphertext: %w", err)
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.KMS.Region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := kms.NewFromConfig(awsCfg)
	in := &kms.DecryptInput{CiphertextBlob: ciphertext}
	if cfg.KMS.KeyID != "" {
		in.KeyId = aws.String(cfg.KMS.KeyID)
	}
	out, err := client.Decrypt(ctx, in)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt signing secret via KMS: %w", err)
	}

	util.Info("File signing secret decrypted via KMS",
		zap.String("region", cfg.KMS.Region))

	return out.Plaintext, nil
}
