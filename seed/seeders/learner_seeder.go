package seeders

import (
	"log"
	"time"

	"github.com/lac-hong-legacy/lms_api/dto"
	"github.com/lac-hong-legacy/lms_api/services"
)

// LearnerSeeder mints a bearer token for a demo learner. Identities live with
// the external provider, so nothing is written to the database.
type LearnerSeeder struct {
	jwt *services.JWTService
}

func NewLearnerSeeder(secret string) *LearnerSeeder {
	return &LearnerSeeder{jwt: services.NewJWTService(secret, 7*24*time.Hour)}
}

func (s *LearnerSeeder) SeedLearner(userID, name, email string) (*dto.TokenPair, error) {
	pair, err := s.jwt.GenerateTokenPair(userID, name, email)
	if err != nil {
		log.Printf("Error minting learner token: %v", err)
		return nil, err
	}
	log.Printf("Demo learner %s (%s) token, valid %ds:\n%s", userID, email, pair.ExpiresIn, pair.AccessToken)
	return pair, nil
}
