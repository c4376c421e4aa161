package repository

import (
	"errors"

	"gorm.io/gorm"
)

var (
	ErrStatusConflict    = errors.New("状态已被其他请求修改")
	ErrBalanceNotEnough  = errors.New("余额不足")
	ErrPendingNotEnough  = errors.New("可提现余额不足")
	ErrOptimisticLock    = errors.New("乐观锁冲突，请重试")
	ErrInvalidTransition = errors.New("状态流转不合法")
)

// use 事务内用 tx，否则退回到仓库自身的连接
func use(tx, db *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return db
}

func paginate(page, pageSize int) (offset, limit int) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}
	return (page - 1) * pageSize, pageSize
}
