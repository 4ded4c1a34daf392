package store

import (
	"context"
	"errors"

	"github.com/example/shop-monolith/domain/account"
	"github.com/example/shop-monolith/domain/shop"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// UserRepository provides access to users, profiles, groups and permissions.
type UserRepository struct {
	base
}

// Create stores a new user with an empty profile.
func (r *UserRepository) Create(ctx context.Context, user *account.User) error {
	db, cancel := r.conn(ctx)
	defer cancel()

	err := db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(user).Error; err != nil {
			return err
		}
		return tx.Create(&account.Profile{UserID: user.ID}).Error
	})
	return classify("create user", err)
}

// Get returns a user by id.
func (r *UserRepository) Get(ctx context.Context, id uint) (*account.User, error) {
	db, cancel := r.conn(ctx)
	defer cancel()

	var user account.User
	if err := db.First(&user, id).Error; err != nil {
		return nil, classify("find user", err)
	}
	return &user, nil
}

// GetByUsername returns a user by username.
func (r *UserRepository) GetByUsername(ctx context.Context, username string) (*account.User, error) {
	db, cancel := r.conn(ctx)
	defer cancel()

	var user account.User
	if err := db.Where("username = ?", username).First(&user).Error; err != nil {
		return nil, classify("find user", err)
	}
	return &user, nil
}

// Exists reports whether a user with id exists.
func (r *UserRepository) Exists(ctx context.Context, id uint) (bool, error) {
	db, cancel := r.conn(ctx)
	defer cancel()

	var count int64
	if err := db.Model(&account.User{}).Where("id = ?", id).Count(&count).Error; err != nil {
		return false, classify("find user", err)
	}
	return count > 0, nil
}

// List returns every user ordered by id.
func (r *UserRepository) List(ctx context.Context) ([]account.User, error) {
	db, cancel := r.conn(ctx)
	defer cancel()

	var users []account.User
	if err := db.Order("id ASC").Find(&users).Error; err != nil {
		return nil, classify("list users", err)
	}
	return users, nil
}

// Delete removes a user. It fails with ErrIntegrity while the user owns
// orders; otherwise the user's products (with their images and order
// links), profile and grants are removed with it.
func (r *UserRepository) Delete(ctx context.Context, id uint) error {
	db, cancel := r.conn(ctx)
	defer cancel()

	err := db.Transaction(func(tx *gorm.DB) error {
		var user account.User
		if err := tx.Select("id").First(&user, id).Error; err != nil {
			return err
		}

		var orders int64
		if err := tx.Model(&shop.Order{}).Where("user_id = ?", id).Count(&orders).Error; err != nil {
			return err
		}
		if orders > 0 {
			return integrityError("user %d owns %d orders", id, orders)
		}

		products := tx.Model(&shop.Product{}).Select("id").Where("created_by_id = ?", id)
		if err := tx.Where("product_id IN (?)", products).Delete(&shop.OrderProduct{}).Error; err != nil {
			return err
		}
		if err := tx.Where("product_id IN (?)", products).Delete(&shop.ProductImage{}).Error; err != nil {
			return err
		}
		if err := tx.Where("created_by_id = ?", id).Delete(&shop.Product{}).Error; err != nil {
			return err
		}
		if err := tx.Where("user_id = ?", id).Delete(&account.Profile{}).Error; err != nil {
			return err
		}
		if err := tx.Where("user_id = ?", id).Delete(&account.UserPermission{}).Error; err != nil {
			return err
		}
		if err := tx.Where("user_id = ?", id).Delete(&account.UserGroup{}).Error; err != nil {
			return err
		}
		return tx.Delete(&account.User{}, id).Error
	})
	return classify("delete user", err)
}

// Permissions returns the codenames granted to a user directly or through
// its groups, sorted and without duplicates.
func (r *UserRepository) Permissions(ctx context.Context, userID uint) ([]string, error) {
	db, cancel := r.conn(ctx)
	defer cancel()

	direct := db.Model(&account.UserPermission{}).
		Select("permission_id").
		Where("user_id = ?", userID)
	viaGroups := db.Model(&account.GroupPermission{}).
		Select("group_permissions.permission_id").
		Joins("JOIN user_groups ON user_groups.group_id = group_permissions.group_id").
		Where("user_groups.user_id = ?", userID)

	var codenames []string
	err := db.Model(&account.Permission{}).
		Where("id IN (?) OR id IN (?)", direct, viaGroups).
		Order("codename ASC").
		Pluck("codename", &codenames).Error
	if err != nil {
		return nil, classify("load permissions", err)
	}
	return codenames, nil
}

// GrantPermission gives a user a permission directly. Granting twice is a no-op.
func (r *UserRepository) GrantPermission(ctx context.Context, userID uint, codename string) error {
	db, cancel := r.conn(ctx)
	defer cancel()

	err := db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Select("id").First(&account.User{}, userID).Error; err != nil {
			return err
		}
		perm, err := permissionByCodename(tx, codename)
		if err != nil {
			return err
		}
		return tx.Clauses(clause.OnConflict{DoNothing: true}).
			Create(&account.UserPermission{UserID: userID, PermissionID: perm.ID}).Error
	})
	return classify("grant permission", err)
}

// AddToGroup places a user in a group. Adding twice is a no-op.
func (r *UserRepository) AddToGroup(ctx context.Context, userID, groupID uint) error {
	db, cancel := r.conn(ctx)
	defer cancel()

	err := db.Clauses(clause.OnConflict{DoNothing: true}).
		Create(&account.UserGroup{UserID: userID, GroupID: groupID}).Error
	return classify("add user to group", err)
}

// GetProfile returns the user's profile, creating an empty one if missing.
func (r *UserRepository) GetProfile(ctx context.Context, userID uint) (*account.Profile, error) {
	db, cancel := r.conn(ctx)
	defer cancel()

	var profile account.Profile
	err := db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Select("id").First(&account.User{}, userID).Error; err != nil {
			return err
		}
		return tx.Where(account.Profile{UserID: userID}).FirstOrCreate(&profile).Error
	})
	if err != nil {
		return nil, classify("load profile", err)
	}
	return &profile, nil
}

// UpsertProfile writes bio and, when non-empty, avatar.
func (r *UserRepository) UpsertProfile(ctx context.Context, userID uint, bio, avatar string) (*account.Profile, error) {
	profile, err := r.GetProfile(ctx, userID)
	if err != nil {
		return nil, err
	}

	db, cancel := r.conn(ctx)
	defer cancel()

	updates := map[string]any{"bio": bio}
	if avatar != "" {
		updates["avatar"] = avatar
	}
	if err := db.Model(profile).Updates(updates).Error; err != nil {
		return nil, classify("update profile", err)
	}

	profile.Bio = bio
	if avatar != "" {
		profile.Avatar = avatar
	}
	return profile, nil
}

// Groups returns every group with its permission codenames.
func (r *UserRepository) Groups(ctx context.Context) ([]account.Group, error) {
	db, cancel := r.conn(ctx)
	defer cancel()

	var groups []account.Group
	if err := db.Order("name ASC").Find(&groups).Error; err != nil {
		return nil, classify("list groups", err)
	}
	if len(groups) == 0 {
		return groups, nil
	}

	type row struct {
		GroupID  uint
		Codename string
	}
	var rows []row
	err := db.Model(&account.GroupPermission{}).
		Select("group_permissions.group_id, permissions.codename").
		Joins("JOIN permissions ON permissions.id = group_permissions.permission_id").
		Order("permissions.codename ASC").
		Scan(&rows).Error
	if err != nil {
		return nil, classify("list group permissions", err)
	}

	index := make(map[uint]int, len(groups))
	for i := range groups {
		index[groups[i].ID] = i
		groups[i].Permissions = []string{}
	}
	for _, rw := range rows {
		if i, ok := index[rw.GroupID]; ok {
			groups[i].Permissions = append(groups[i].Permissions, rw.Codename)
		}
	}
	return groups, nil
}

// CreateGroup stores a group granting the given permission codenames.
func (r *UserRepository) CreateGroup(ctx context.Context, name string, codenames []string) (*account.Group, error) {
	db, cancel := r.conn(ctx)
	defer cancel()

	group := &account.Group{Name: name}
	err := db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(group).Error; err != nil {
			return err
		}
		for _, codename := range codenames {
			perm, err := permissionByCodename(tx, codename)
			if err != nil {
				return err
			}
			err = tx.Clauses(clause.OnConflict{DoNothing: true}).
				Create(&account.GroupPermission{GroupID: group.ID, PermissionID: perm.ID}).Error
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, classify("create group", err)
	}

	group.Permissions = uniqueStrings(codenames)
	return group, nil
}

func permissionByCodename(tx *gorm.DB, codename string) (*account.Permission, error) {
	var perm account.Permission
	err := tx.Where("codename = ?", codename).First(&perm).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, integrityError("unknown permission %q", codename)
	}
	if err != nil {
		return nil, err
	}
	return &perm, nil
}

func uniqueStrings(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
