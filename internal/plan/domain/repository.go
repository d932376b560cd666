package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, plan *Plan) error
	Update(ctx context.Context, db *gorm.DB, plan *Plan) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Plan, error)
	FindByName(ctx context.Context, db *gorm.DB, name string) (*Plan, error)
	FindCheapestFree(ctx context.Context, db *gorm.DB) (*Plan, error)
	List(ctx context.Context, db *gorm.DB) ([]Plan, error)
}
