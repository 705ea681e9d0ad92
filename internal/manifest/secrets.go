package manifest

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"fmt"

	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

const (
	databasePasswordLength = 32
	adminPasswordLength    = 16
	saltLength             = 64
)

// StoreSecrets holds the generated credentials for one store.
type StoreSecrets struct {
	MySQLRootPassword string
	MySQLUserPassword string
	AdminPassword     string
	// Keys holds the eight WordPress authentication keys and salts.
	Keys map[string]string
}

// GenerateStoreSecrets draws fresh credentials from crypto/rand.
func GenerateStoreSecrets() (*StoreSecrets, error) {
	root, err := randomHex(databasePasswordLength)
	if err != nil {
		return nil, err
	}
	user, err := randomHex(databasePasswordLength)
	if err != nil {
		return nil, err
	}
	admin, err := randomHex(adminPasswordLength)
	if err != nil {
		return nil, err
	}
	keys := make(map[string]string, len(wordpressKeyEnv))
	for _, name := range wordpressKeyEnv {
		salt, err := randomSalt(saltLength)
		if err != nil {
			return nil, err
		}
		keys[name] = salt
	}
	return &StoreSecrets{
		MySQLRootPassword: root,
		MySQLUserPassword: user,
		AdminPassword:     admin,
		Keys:              keys,
	}, nil
}

func randomHex(n int) (string, error) {
	buf := make([]byte, (n+1)/2)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("read random bytes: %w", err)
	}
	return hex.EncodeToString(buf)[:n], nil
}

func randomSalt(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("read random bytes: %w", err)
	}
	return base64.StdEncoding.EncodeToString(buf)[:n], nil
}

// MySQLSecret returns the database credentials secret.
func (b *Builder) MySQLSecret(namespace string, s *StoreSecrets) *corev1.Secret {
	return &corev1.Secret{
		ObjectMeta: metav1.ObjectMeta{Name: MySQLSecretName, Namespace: namespace, Labels: managedLabels(MySQLName)},
		Type:       corev1.SecretTypeOpaque,
		StringData: map[string]string{
			"root-password":      s.MySQLRootPassword,
			"wordpress-password": s.MySQLUserPassword,
		},
	}
}

// WordPressSecret returns the admin password and the WordPress salts.
func (b *Builder) WordPressSecret(namespace string, s *StoreSecrets) *corev1.Secret {
	data := make(map[string]string, len(s.Keys)+1)
	for k, v := range s.Keys {
		data[k] = v
	}
	data["admin-password"] = s.AdminPassword
	return &corev1.Secret{
		ObjectMeta: metav1.ObjectMeta{Name: WordPressSecretName, Namespace: namespace, Labels: managedLabels(WordPressName)},
		Type:       corev1.SecretTypeOpaque,
		StringData: data,
	}
}
