package config

import (
	"fmt"
)

type CacheKeyStruct struct{}

func NewCacheKeyStruct() *CacheKeyStruct {
	return &CacheKeyStruct{}
}

// StudentSessionKey returns the cache key for a student's login session.
func (r *CacheKeyStruct) StudentSessionKey(studentID int) string {
	return fmt.Sprintf("login:%d", studentID)
}

// TestPaperKey returns the cache key for a test's student-facing paper.
func (r *CacheKeyStruct) TestPaperKey(testID string) string {
	return fmt.Sprintf("test:%s:paper", testID)
}

// TestAnswerKey returns the cache key for a test's answer key hash.
func (r *CacheKeyStruct) TestAnswerKey(testID string) string {
	return fmt.Sprintf("test:%s:key", testID)
}

var CacheKey = NewCacheKeyStruct()
