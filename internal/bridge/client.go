package bridge

import (
	"crypto/tls"
	"log/slog"
	"os"
	"strings"
	"time"

	jwt "github.com/dgrijalva/jwt-go"
	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/pkg/errors"

	"HumaGCS/internal/config"
)

const connectTimeout = 5 * time.Second

// password signs a broker password from the PEM key at keyPath. Brokers that
// authenticate by JWT validate iat, exp and aud.
func password(keyPath, algorithm, audience string, now time.Time) (string, error) {
	keyData, err := os.ReadFile(keyPath)
	if err != nil {
		return "", errors.Wrap(err, "reading private key")
	}

	var key interface{}
	switch algorithm {
	case "RS256":
		key, err = jwt.ParseRSAPrivateKeyFromPEM(keyData)
	case "ES256":
		key, err = jwt.ParseECPrivateKeyFromPEM(keyData)
	default:
		return "", errors.Errorf("unknown algorithm: %s", algorithm)
	}
	if err != nil {
		return "", errors.Wrapf(err, "parsing %s key", algorithm)
	}

	token := jwt.NewWithClaims(jwt.GetSigningMethod(algorithm), &jwt.StandardClaims{
		IssuedAt:  now.Unix(),
		ExpiresAt: now.Add(24 * time.Hour).Unix(),
		Audience:  audience,
	})
	pass, err := token.SignedString(key)
	if err != nil {
		return "", errors.Wrap(err, "signing token")
	}
	return pass, nil
}

// NewMQTTClient connects to the configured broker. A private key switches on
// JWT password authentication.
func NewMQTTClient(cfg config.BridgeConfig, deviceID string, logger *slog.Logger) (mqtt.Client, error) {
	clientID := cfg.ClientID
	if clientID == "" {
		clientID = "gcs-" + deviceID
	}

	opts := mqtt.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(clientID).
		SetUsername(cfg.Username).
		SetAutoReconnect(true).
		SetProtocolVersion(4) // MQTT 3.1.1

	if strings.HasPrefix(cfg.Broker, "ssl://") || strings.HasPrefix(cfg.Broker, "tls://") {
		opts.SetTLSConfig(&tls.Config{MinVersion: tls.VersionTLS12})
	}

	if cfg.PrivateKey != "" {
		pass, err := password(cfg.PrivateKey, cfg.Algorithm, cfg.Audience, time.Now())
		if err != nil {
			return nil, err
		}
		opts.SetPassword(pass)
	}

	client := mqtt.NewClient(opts)

	logger.Info("connecting mqtt", "broker", cfg.Broker, "client", clientID)
	tok := client.Connect()
	if !tok.WaitTimeout(connectTimeout) {
		return nil, errors.Errorf("connecting to %s: timed out after %s", cfg.Broker, connectTimeout)
	}
	if err := tok.Error(); err != nil {
		return nil, errors.Wrapf(err, "connecting to %s", cfg.Broker)
	}
	return client, nil
}
