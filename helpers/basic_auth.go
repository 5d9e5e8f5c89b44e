package helpers

import (
	"net/http"

	"code.cloudfoundry.org/cpuwatcher/models"
	"code.cloudfoundry.org/lager/v3"
	"golang.org/x/crypto/bcrypt"
)

// bcrypt ignores everything after the 72nd byte.
const maxBcryptInputLength = 72

type BasicAuthenticationMiddleware struct {
	usernameHash []byte
	passwordHash []byte
	logger       lager.Logger
}

func (bam *BasicAuthenticationMiddleware) BasicAuthenticationMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		username, password, authOK := r.BasicAuth()

		if !authOK || bcrypt.CompareHashAndPassword(bam.usernameHash, []byte(username)) != nil || bcrypt.CompareHashAndPassword(bam.passwordHash, []byte(password)) != nil {
			bam.logger.Debug("unauthorized", lager.Data{"path": r.URL.Path})
			http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func CreateBasicAuthMiddleware(logger lager.Logger, ba models.BasicAuth) (*BasicAuthenticationMiddleware, error) {
	usernameHash, err := hashCredential(logger, "username", ba.UsernameHash, ba.Username)
	if err != nil {
		return nil, err
	}

	passwordHash, err := hashCredential(logger, "password", ba.PasswordHash, ba.Password)
	if err != nil {
		return nil, err
	}

	return &BasicAuthenticationMiddleware{
		usernameHash: usernameHash,
		passwordHash: passwordHash,
		logger:       logger,
	}, nil
}

func hashCredential(logger lager.Logger, name string, hash string, cleartext string) ([]byte, error) {
	if hash != "" {
		return []byte(hash), nil
	}
	if len(cleartext) > maxBcryptInputLength {
		logger.Error("warning-configured-"+name+"-too-long-using-only-first-72-characters", bcrypt.ErrPasswordTooLong, lager.Data{name + "-length": len(cleartext)})
		cleartext = cleartext[:maxBcryptInputLength]
	}
	// MinCost: the configuration already holds the cleartext.
	hashed, err := bcrypt.GenerateFromPassword([]byte(cleartext), bcrypt.MinCost)
	if err != nil {
		logger.Error("failed-to-hash-"+name, err)
		return nil, err
	}
	return hashed, nil
}
