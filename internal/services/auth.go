package services

import (
  "context"
  "fmt"
  "strings"
  "time"

  "github.com/golang-jwt/jwt/v5"
  "github.com/google/uuid"
  "golang.org/x/crypto/bcrypt"
  "gorm.io/gorm"

  "github.com/medcurio/taxonomy-backend/internal/logger"
  "github.com/medcurio/taxonomy-backend/internal/repos"
  "github.com/medcurio/taxonomy-backend/internal/requestdata"
  "github.com/medcurio/taxonomy-backend/internal/types"
)

type JWTClaims struct {
  jwt.RegisteredClaims
}

type AuthService interface {
  RegisterUser(ctx context.Context, user *types.User) error
  LoginUser(ctx context.Context, email, password string) (string, string, error)
  RefreshUser(ctx context.Context) (string, string, error)
  LogoutUser(ctx context.Context) error
  SetContextFromToken(ctx context.Context, tokenString string) (context.Context, error)
  GetAccessTTL() time.Duration
}

type authService struct {
  db            *gorm.DB
  log           *logger.Logger
  userRepo      repos.UserRepo
  userTokenRepo repos.UserTokenRepo
  jwtSecretKey  string
  accessTTL     time.Duration
  refreshTTL    time.Duration
}

func NewAuthService(
  db *gorm.DB,
  log *logger.Logger,
  userRepo repos.UserRepo,
  userTokenRepo repos.UserTokenRepo,
  jwtSecretKey string,
  accessTTL time.Duration,
  refreshTTL time.Duration,
) AuthService {
  return &authService{
    db:            db,
    log:           log.With("service", "AuthService"),
    userRepo:      userRepo,
    userTokenRepo: userTokenRepo,
    jwtSecretKey:  jwtSecretKey,
    accessTTL:     accessTTL,
    refreshTTL:    refreshTTL,
  }
}

func (as *authService) RegisterUser(ctx context.Context, user *types.User) error {
  user.Email = strings.ToLower(strings.TrimSpace(user.Email))
  if user.Email == "" || user.Password == "" {
    return fmt.Errorf("Email and password are required")
  }
  exists, err := as.userRepo.EmailExists(ctx, nil, user.Email)
  if err != nil {
    return fmt.Errorf("Failed to check existing email: %w", err)
  }
  if exists {
    return fmt.Errorf("Email already registered")
  }
  hash, err := bcrypt.GenerateFromPassword([]byte(user.Password), bcrypt.DefaultCost)
  if err != nil {
    return fmt.Errorf("Failed to hash password: %w", err)
  }
  user.Password = string(hash)
  return as.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
    user.ID = uuid.New()
    if _, err := as.userRepo.Create(ctx, tx, []*types.User{user}); err != nil {
      return fmt.Errorf("Failed to create user in postgres: %w", err)
    }
    return nil
  })
}

func (as *authService) LoginUser(ctx context.Context, email, password string) (string, string, error) {
  email = strings.ToLower(strings.TrimSpace(email))
  if email == "" || password == "" {
    return "", "", fmt.Errorf("Email and password are required")
  }

  users, err := as.userRepo.GetByEmails(ctx, nil, []string{email})
  if err != nil {
    return "", "", fmt.Errorf("Error retrieving user by email: %w", err)
  }
  if len(users) == 0 {
    return "", "", fmt.Errorf("Invalid email")
  }
  user := users[0]
  if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(password)); err != nil {
    return "", "", fmt.Errorf("Invalid password")
  }

  var accessToken string
  var refreshToken string
  err = as.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
    foundTokens, ftErr := as.userTokenRepo.GetByUserIDs(ctx, tx, []uuid.UUID{user.ID})
    if ftErr != nil {
      return fmt.Errorf("Failed to check user tokens: %w", ftErr)
    }
    for _, tok := range foundTokens {
      if tok == nil {
        continue
      }
      if tok.ExpiresAt.Before(time.Now()) {
        if dtErr := as.userTokenRepo.FullDeleteByTokens(ctx, tx, []*types.UserToken{tok}); dtErr != nil {
          return fmt.Errorf("Failed to delete expired user token: %w", dtErr)
        }
      }
    }
    tok, genErr := as.generateAccessToken(user)
    if genErr != nil {
      return fmt.Errorf("Generate access token error: %w", genErr)
    }
    accessToken = tok
    refreshToken = uuid.New().String()
    userToken := types.UserToken{
      ID:           uuid.New(),
      UserID:       user.ID,
      AccessToken:  accessToken,
      RefreshToken: refreshToken,
      ExpiresAt:    time.Now().Add(as.refreshTTL),
    }
    if _, ctErr := as.userTokenRepo.Create(ctx, tx, []*types.UserToken{&userToken}); ctErr != nil {
      as.log.Warn("Create User Token Error", "error", ctErr)
      return fmt.Errorf("Create User Token Error: %w", ctErr)
    }
    return nil
  })
  if err != nil {
    return "", "", err
  }
  return accessToken, refreshToken, nil
}

func (as *authService) RefreshUser(ctx context.Context) (string, string, error) {
  rd := requestdata.GetRequestData(ctx)
  if rd == nil {
    return "", "", fmt.Errorf("No request data found in context")
  }
  if rd.RefreshToken == "" {
    return "", "", fmt.Errorf("Refresh token not found in request data")
  }

  var accessToken string
  var newRefreshToken string
  err := as.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
    foundTokens, ftErr := as.userTokenRepo.GetByRefreshTokens(ctx, tx, []string{rd.RefreshToken})
    if ftErr != nil {
      return fmt.Errorf("Error fetching refresh token: %w", ftErr)
    }
    if len(foundTokens) == 0 || foundTokens[0] == nil {
      return fmt.Errorf("Unknown refresh token")
    }
    existingToken := foundTokens[0]
    if existingToken.ExpiresAt.Before(time.Now()) {
      if dtErr := as.userTokenRepo.FullDeleteByTokens(ctx, tx, []*types.UserToken{existingToken}); dtErr != nil {
        return fmt.Errorf("Refresh token expired, error deleting: %w", dtErr)
      }
      return fmt.Errorf("Refresh token expired")
    }
    users, uErr := as.userRepo.GetByIDs(ctx, tx, []uuid.UUID{existingToken.UserID})
    if uErr != nil {
      return fmt.Errorf("Failed to load user for refresh: %w", uErr)
    }
    if len(users) == 0 {
      return fmt.Errorf("No user found for the given refresh token")
    }
    tok, genErr := as.generateAccessToken(users[0])
    if genErr != nil {
      return fmt.Errorf("Failed to generate new access token: %w", genErr)
    }
    accessToken = tok
    newRefreshToken = uuid.New().String()
    newUserToken := types.UserToken{
      ID:           uuid.New(),
      UserID:       users[0].ID,
      AccessToken:  tok,
      RefreshToken: newRefreshToken,
      ExpiresAt:    time.Now().Add(as.refreshTTL),
    }
    if _, cErr := as.userTokenRepo.Create(ctx, tx, []*types.UserToken{&newUserToken}); cErr != nil {
      return fmt.Errorf("Failed to create new user token: %w", cErr)
    }
    if dErr := as.userTokenRepo.FullDeleteByTokens(ctx, tx, []*types.UserToken{existingToken}); dErr != nil {
      return fmt.Errorf("Failed to remove old refresh token: %w", dErr)
    }
    return nil
  })
  if err != nil {
    as.log.Warn("Failed refresh transaction", "error", err)
    return "", "", err
  }
  return accessToken, newRefreshToken, nil
}

func (as *authService) LogoutUser(ctx context.Context) error {
  rd := requestdata.GetRequestData(ctx)
  if rd == nil {
    return fmt.Errorf("No request data found in context")
  }
  if rd.TokenString == "" {
    return fmt.Errorf("TokenString in request data empty")
  }
  return as.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
    foundTokens, ftErr := as.userTokenRepo.GetByAccessTokens(ctx, tx, []string{rd.TokenString})
    if ftErr != nil {
      return fmt.Errorf("Error finding user token from token string: %w", ftErr)
    }
    if len(foundTokens) == 0 || foundTokens[0] == nil {
      return nil
    }
    if tdErr := as.userTokenRepo.FullDeleteByTokens(ctx, tx, []*types.UserToken{foundTokens[0]}); tdErr != nil {
      return fmt.Errorf("Error deleting user token: %w", tdErr)
    }
    return nil
  })
}

func (as *authService) generateAccessToken(user *types.User) (string, error) {
  claims := JWTClaims{
    RegisteredClaims: jwt.RegisteredClaims{
      Subject:   user.ID.String(),
      ExpiresAt: jwt.NewNumericDate(time.Now().Add(as.accessTTL)),
      IssuedAt:  jwt.NewNumericDate(time.Now()),
    },
  }
  token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
  return token.SignedString([]byte(as.jwtSecretKey))
}

func (as *authService) SetContextFromToken(ctx context.Context, tokenString string) (context.Context, error) {
  if tokenString == "" {
    return ctx, nil
  }
  parsedToken, err := jwt.ParseWithClaims(tokenString, &JWTClaims{}, func(token *jwt.Token) (interface{}, error) {
    return []byte(as.jwtSecretKey), nil
  })
  if err != nil {
    return ctx, fmt.Errorf("Failed to parse token: %w", err)
  }
  claims, ok := parsedToken.Claims.(*JWTClaims)
  if !ok || !parsedToken.Valid {
    return ctx, fmt.Errorf("Invalid or expired JWT token")
  }
  userID, err := uuid.Parse(claims.Subject)
  if err != nil {
    return ctx, fmt.Errorf("Invalid user id in token: %w", err)
  }
  foundTokens, ftErr := as.userTokenRepo.GetByAccessTokens(ctx, nil, []string{tokenString})
  if ftErr != nil {
    return ctx, fmt.Errorf("Failed to fetch user token by access token: %w", ftErr)
  }
  if len(foundTokens) == 0 || foundTokens[0] == nil {
    return ctx, fmt.Errorf("Access token not recognized")
  }
  rd := &requestdata.RequestData{
    TokenString:  tokenString,
    RefreshToken: foundTokens[0].RefreshToken,
    UserID:       userID,
  }
  return requestdata.WithRequestData(ctx, rd), nil
}

func (as *authService) GetAccessTTL() time.Duration {
  return as.accessTTL
}
