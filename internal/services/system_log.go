package services

import (
	"encoding/json"
	"os"
	"strconv"
	"time"

	"github.com/rebolloluis/family-tree/internal/models"
	"github.com/rebolloluis/family-tree/pkg/logger"
	"github.com/robfig/cron/v3"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var globalDB *gorm.DB

func InitSystemLogger(db *gorm.DB) {
	globalDB = db
}

func LogInfo(module, action, message string, userID *uint, ip, userAgent string, extra interface{}) {
	writeLog("info", module, action, message, userID, ip, userAgent, extra)
}

func LogWarning(module, action, message string, userID *uint, ip, userAgent string, extra interface{}) {
	writeLog("warning", module, action, message, userID, ip, userAgent, extra)
}

func LogError(module, action, message string, userID *uint, ip, userAgent string, extra interface{}) {
	writeLog("error", module, action, message, userID, ip, userAgent, extra)
}

func writeLog(level, module, action, message string, userID *uint, ip, userAgent string, extra interface{}) {
	if globalDB == nil {
		return
	}

	var extraStr string
	if extra != nil {
		if b, err := json.Marshal(extra); err == nil {
			extraStr = string(b)
		}
	}

	entry := &models.SystemLog{
		Level:     level,
		Module:    module,
		Action:    action,
		Message:   message,
		UserID:    userID,
		FamilyID:  familyOf(extra),
		IP:        ip,
		UserAgent: userAgent,
		Extra:     extraStr,
		CreatedAt: time.Now(),
	}
	if err := globalDB.Create(entry).Error; err != nil {
		logger.Warn().Err(err).Str("module", module).Str("action", action).Msg("system log not written")
	}
}

// familyOf picks the family id out of a log's extra data.
func familyOf(extra interface{}) *string {
	var id string
	switch e := extra.(type) {
	case map[string]interface{}:
		id, _ = e["family_id"].(string)
	case map[string]string:
		id = e["family_id"]
	}
	if id == "" {
		return nil
	}
	return &id
}

type SystemLogService struct {
	db *gorm.DB
}

func NewSystemLogService(db *gorm.DB) *SystemLogService {
	return &SystemLogService{db: db}
}

type SystemLogListRequest struct {
	Page      int    `form:"page" binding:"omitempty,min=1"`
	PageSize  int    `form:"page_size" binding:"omitempty,min=1,max=100"`
	Level     string `form:"level"`
	Module    string `form:"module"`
	FamilyID  string `form:"family_id"`
	Action    string `form:"action"`
	StartDate string `form:"start_date"`
	EndDate   string `form:"end_date"`
	Search    string `form:"search"`
}

type SystemLogListResponse struct {
	Total    int64              `json:"total"`
	Page     int                `json:"page"`
	PageSize int                `json:"page_size"`
	Items    []models.SystemLog `json:"items"`
}

func (s *SystemLogService) List(req *SystemLogListRequest) (*SystemLogListResponse, error) {
	if req.Page == 0 {
		req.Page = 1
	}
	if req.PageSize == 0 {
		req.PageSize = 20
	}

	var logs []models.SystemLog
	var total int64

	query := s.db.Model(&models.SystemLog{})

	if req.Level != "" {
		query = query.Where("level = ?", req.Level)
	}
	if req.Module != "" {
		query = query.Where("module = ?", req.Module)
	}
	if req.FamilyID != "" {
		query = query.Where("family_id = ?", req.FamilyID)
	}
	if req.Action != "" {
		query = query.Where("action LIKE ?", "%"+req.Action+"%")
	}
	if req.StartDate != "" {
		query = query.Where("created_at >= ?", req.StartDate)
	}
	if req.EndDate != "" {
		query = query.Where("created_at <= ?", req.EndDate+" 23:59:59")
	}
	if req.Search != "" {
		query = query.Where("message LIKE ?", "%"+req.Search+"%")
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, err
	}

	offset := (req.Page - 1) * req.PageSize
	if err := query.Offset(offset).Limit(req.PageSize).Order("created_at DESC").Find(&logs).Error; err != nil {
		return nil, err
	}

	return &SystemLogListResponse{
		Total:    total,
		Page:     req.Page,
		PageSize: req.PageSize,
		Items:    logs,
	}, nil
}

func (s *SystemLogService) GetModules() ([]string, error) {
	var modules []string
	if err := s.db.Model(&models.SystemLog{}).Distinct("module").Pluck("module", &modules).Error; err != nil {
		return nil, err
	}
	return modules, nil
}

// CleanupOldLogs deletes logs older than retentionDays and returns how many
// rows were removed.
func (s *SystemLogService) CleanupOldLogs(retentionDays int) (int64, error) {
	if retentionDays <= 0 {
		return 0, nil
	}

	cutoffTime := time.Now().AddDate(0, 0, -retentionDays)
	result := s.db.Where("created_at < ?", cutoffTime).Delete(&models.SystemLog{})
	if result.Error != nil {
		return 0, result.Error
	}

	return result.RowsAffected, nil
}

func (s *SystemLogService) GetRetentionDays() int {
	return NewSystemConfigService(s.db).GetInt(models.ConfigLogRetentionDays, 30)
}

func (s *SystemLogService) SetRetentionDays(days int) error {
	return NewSystemConfigService(s.db).Set(models.ConfigLogRetentionDays, strconv.Itoa(days))
}

// LogCleanupScheduler runs the retention cleanup once a day. Several server
// instances may share a database; a scheduler lock row keeps one run per day.
type LogCleanupScheduler struct {
	db       *gorm.DB
	service  *SystemLogService
	cron     *cron.Cron
	instance string
}

func NewLogCleanupScheduler(db *gorm.DB) *LogCleanupScheduler {
	host, _ := os.Hostname()
	return &LogCleanupScheduler{
		db:       db,
		service:  NewSystemLogService(db),
		instance: host + "-" + strconv.Itoa(os.Getpid()),
	}
}

func (s *LogCleanupScheduler) Start() error {
	s.cron = cron.New()
	if _, err := s.cron.AddFunc("30 3 * * *", func() { s.RunOnce(time.Now()) }); err != nil {
		return err
	}
	s.cron.Start()
	logger.Info().Str("instance", s.instance).Msg("log cleanup scheduler started")
	return nil
}

func (s *LogCleanupScheduler) Stop() {
	if s.cron != nil {
		<-s.cron.Stop().Done()
	}
}

// RunOnce performs the cleanup for the day of now if no other instance has
// claimed it. It reports whether this call ran the cleanup.
func (s *LogCleanupScheduler) RunOnce(now time.Time) bool {
	key := now.Format("2006-01-02")
	if !s.acquire("log_cleanup", key, now) {
		return false
	}

	retentionDays := s.service.GetRetentionDays()
	deleted, err := s.service.CleanupOldLogs(retentionDays)
	if err != nil {
		logger.Error().Err(err).Msg("log cleanup failed")
		return true
	}
	if deleted > 0 {
		logger.Info().Int64("deleted", deleted).Int("retention_days", retentionDays).Msg("old system logs removed")
	}
	return true
}

func (s *LogCleanupScheduler) acquire(name, key string, now time.Time) bool {
	lock := models.SchedulerLock{
		LockName:  name,
		LockKey:   key,
		LockedBy:  s.instance,
		LockedAt:  now,
		ExpiresAt: now.Add(24 * time.Hour),
	}
	result := s.db.Clauses(clause.OnConflict{DoNothing: true}).Create(&lock)
	if result.Error != nil {
		logger.Warn().Err(result.Error).Str("lock", name).Msg("scheduler lock not acquired")
		return false
	}
	return result.RowsAffected == 1
}
