package usecase

import (
	"context"
	"fmt"

	"zarigaas/internal/domain/entity"
	"zarigaas/internal/domain/repository"
	"zarigaas/internal/normalize"
	"zarigaas/pkg/errors"
	"zarigaas/pkg/logger"
)

// checkUserAdmin applies the rules shared by every write on another
// account. It never touches the store.
func checkUserAdmin(actor entity.Actor, targetUID string) error {
	if actor.UID == "" {
		return errors.Unauthorized("Sign in required", nil)
	}
	if targetUID == "" {
		return errors.Validation("User id is required", nil)
	}
	if actor.UID == targetUID {
		return errors.Validation("You cannot change your own account", nil)
	}
	if !actor.Role.IsOperator() {
		return errors.Forbidden("Only admins can manage users", nil)
	}
	return nil
}

func (wc *WriteCoordinator) loadManagedUser(ctx context.Context, actor entity.Actor, targetUID string) (entity.User, map[string]interface{}, error) {
	doc, err := wc.store.Get(ctx, repository.CollectionUsers, targetUID)
	if err != nil {
		return entity.User{}, nil, err
	}
	user, _ := normalize.User(doc, wc.now())
	if user.Role == entity.RoleOwner && actor.Role != entity.RoleOwner {
		return entity.User{}, nil, errors.Forbidden("Only an owner can manage another owner", nil)
	}
	return user, doc.Data, nil
}

// UpdateRole changes another user's role. Nobody may change their own role
// or grant a role above their own.
func (wc *WriteCoordinator) UpdateRole(ctx context.Context, actor entity.Actor, targetUID string, role entity.Role) (*entity.User, error) {
	if err := checkUserAdmin(actor, targetUID); err != nil {
		return nil, err
	}
	if !entity.ValidRole(role) {
		return nil, errors.Validation(fmt.Sprintf("Unknown role %q", role), nil)
	}
	if !actor.Role.Includes(role) {
		return nil, errors.Forbidden("You cannot grant a role above your own", nil)
	}

	var user entity.User
	err := wc.run(ctx, "update role", func(ctx context.Context) error {
		u, data, err := wc.loadManagedUser(ctx, actor, targetUID)
		if err != nil {
			return err
		}
		user = u
		if user.Role == role {
			return nil
		}
		field := normalize.UserAliases.StoredField(data, "role")
		if err := wc.store.Update(ctx, repository.CollectionUsers, targetUID, map[string]interface{}{field: string(role)}); err != nil {
			return err
		}
		user.Role = role
		return nil
	})
	if err != nil {
		logger.LogWriteError(repository.CollectionUsers, "update_role", targetUID, err)
		return nil, err
	}
	logger.Info("User %s role set to %s by %s", targetUID, role, actor.UID)
	return &user, nil
}

func (wc *WriteCoordinator) SetUserDisabled(ctx context.Context, actor entity.Actor, targetUID string, disabled bool) (*entity.User, error) {
	if err := checkUserAdmin(actor, targetUID); err != nil {
		return nil, err
	}

	var user entity.User
	err := wc.run(ctx, "set user disabled", func(ctx context.Context) error {
		u, data, err := wc.loadManagedUser(ctx, actor, targetUID)
		if err != nil {
			return err
		}
		user = u
		if user.Disabled == disabled {
			return nil
		}
		field := normalize.UserAliases.StoredField(data, "disabled")
		if err := wc.store.Update(ctx, repository.CollectionUsers, targetUID, map[string]interface{}{field: disabled}); err != nil {
			return err
		}
		user.Disabled = disabled
		return nil
	})
	if err != nil {
		logger.LogWriteError(repository.CollectionUsers, "set_disabled", targetUID, err)
		return nil, err
	}
	logger.Info("User %s disabled=%t by %s", targetUID, disabled, actor.UID)
	return &user, nil
}

// EnsureProfile creates the profile on first sign-in and otherwise records
// the login time.
func (wc *WriteCoordinator) EnsureProfile(ctx context.Context, id Identity) (*entity.User, error) {
	if id.UID == "" {
		return nil, errors.Unauthorized("Sign in required", nil)
	}

	var user entity.User
	err := wc.run(ctx, "ensure profile", func(ctx context.Context) error {
		now := wc.now()
		doc, err := wc.store.Get(ctx, repository.CollectionUsers, id.UID)
		if errors.Is(err, errors.CodeNotFound) {
			w := normalize.UserAliases.Write
			err = wc.store.Create(ctx, repository.CollectionUsers, id.UID, map[string]interface{}{
				w("email"):       id.Email,
				w("displayName"): id.DisplayName,
				w("role"):        string(entity.RoleUser),
				w("disabled"):    false,
				w("createdAt"):   repository.ServerTimestamp,
				w("lastLoginAt"): repository.ServerTimestamp,
			})
			if err == nil {
				user = entity.User{
					UID:         id.UID,
					Email:       id.Email,
					DisplayName: id.DisplayName,
					Role:        entity.RoleUser,
					CreatedAt:   now,
					LastLoginAt: now,
				}
				logger.Info("Created profile for %s", id.UID)
				return nil
			}
			if !errors.Is(err, errors.CodeAlreadyExists) {
				return err
			}
			// Another session created it first.
			doc, err = wc.store.Get(ctx, repository.CollectionUsers, id.UID)
		}
		if err != nil {
			return err
		}

		user, _ = normalize.User(doc, now)
		fields := map[string]interface{}{
			normalize.UserAliases.StoredField(doc.Data, "lastLoginAt"): repository.ServerTimestamp,
		}
		if user.Email == "" && id.Email != "" {
			fields[normalize.UserAliases.StoredField(doc.Data, "email")] = id.Email
			user.Email = id.Email
		}
		if err := wc.store.Update(ctx, repository.CollectionUsers, id.UID, fields); err != nil {
			return err
		}
		user.LastLoginAt = now
		return nil
	})
	if err != nil {
		logger.LogWriteError(repository.CollectionUsers, "ensure_profile", id.UID, err)
		return nil, err
	}
	return &user, nil
}

// ResolveActor reads the caller's role from their profile. Users without a
// profile act with the user role; disabled accounts are refused.
func (wc *WriteCoordinator) ResolveActor(ctx context.Context, uid string) (entity.Actor, error) {
	if uid == "" {
		return entity.Actor{}, errors.Unauthorized("Sign in required", nil)
	}

	actor := entity.Actor{UID: uid, Role: entity.RoleUser}
	err := wc.run(ctx, "resolve actor", func(ctx context.Context) error {
		doc, err := wc.store.Get(ctx, repository.CollectionUsers, uid)
		if errors.Is(err, errors.CodeNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		user, _ := normalize.User(doc, wc.now())
		if user.Disabled {
			return errors.Forbidden("This account is disabled", nil)
		}
		actor.Role = user.Role
		return nil
	})
	if err != nil {
		return entity.Actor{}, err
	}
	return actor, nil
}
