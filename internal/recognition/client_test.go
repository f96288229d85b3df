package recognition

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/face-attendance-api/pkg/config"
)

func testConfig(baseURL string) config.RecognitionConfig {
	return config.RecognitionConfig{
		BaseURL:             baseURL,
		ConfidenceThreshold: 0.6,
		Timeout:             2 * time.Second,
		BatchTimeout:        5 * time.Second,
		RegisterTimeout:     5 * time.Second,
		MaxRetries:          1,
		RetryBaseDelay:      10 * time.Millisecond,
	}
}

func healthyHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			json.NewEncoder(w).Encode(map[string]string{"status": "OK"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func TestRecognizeSingleSuccess(t *testing.T) {
	srv := httptest.NewServer(healthyHandler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/process_single_image", r.URL.Path)
		var req map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, 0.6, req["confidence_threshold"])
		json.NewEncoder(w).Encode(map[string]interface{}{
			"success": true,
			"recognized_students": []map[string]interface{}{
				{"student_id": "stu-1", "name": "Alice", "confidence": 0.97},
			},
			"faces_detected":     2,
			"unregistered_faces": 1,
			"processing_time":    0.42,
		})
	})))
	defer srv.Close()

	client := NewClient(testConfig(srv.URL), zap.NewNop())
	result := client.RecognizeSingle(context.Background(), "base64data")

	assert.False(t, result.Failed())
	require.Len(t, result.Recognized, 1)
	assert.Equal(t, "stu-1", result.Recognized[0].StudentID)
	assert.Equal(t, 2, result.FacesDetected)
	assert.Equal(t, 1, result.UnregisteredFaces)
}

func TestRecognizeSingleUnhealthyService(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	client := NewClient(testConfig(srv.URL), zap.NewNop())
	result := client.RecognizeSingle(context.Background(), "base64data")

	assert.Equal(t, FailureUnavailable, result.Failure)
	assert.Empty(t, result.Recognized)
}

func TestRecognizeSingleServiceError(t *testing.T) {
	srv := httptest.NewServer(healthyHandler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"success": false,
			"error":   "no face detected",
		})
	})))
	defer srv.Close()

	client := NewClient(testConfig(srv.URL), zap.NewNop())
	result := client.RecognizeSingle(context.Background(), "base64data")

	assert.Equal(t, FailureServiceError, result.Failure)
	assert.Equal(t, "no face detected", result.FailureDetail)
}

func TestRecognizeBatch(t *testing.T) {
	srv := httptest.NewServer(healthyHandler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/process_batch_images", r.URL.Path)
		var req map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Len(t, req["images"], 3)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"success": true,
			"recognized_students": []map[string]interface{}{
				{"student_id": "stu-1", "name": "Alice", "confidence": 0.91},
				{"student_id": "stu-2", "name": "Bob", "confidence": 0.88},
			},
			"total_faces_detected": 5,
		})
	})))
	defer srv.Close()

	client := NewClient(testConfig(srv.URL), zap.NewNop())
	result := client.RecognizeBatch(context.Background(), []string{"a", "b", "c"})

	assert.False(t, result.Failed())
	assert.Len(t, result.Recognized, 2)
	assert.Equal(t, 5, result.FacesDetected)
}

func TestRegisterStudentRequiresTwoImages(t *testing.T) {
	client := NewClient(testConfig("http://127.0.0.1:0"), zap.NewNop())
	err := client.RegisterStudent(context.Background(), "stu-1", "Alice", []string{"one"})
	require.Error(t, err)
}

func TestRegisterStudentSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/register_student", r.URL.Path)
		var req map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "stu-1", req["student_id"])
		json.NewEncoder(w).Encode(map[string]interface{}{"success": true})
	}))
	defer srv.Close()

	client := NewClient(testConfig(srv.URL), zap.NewNop())
	err := client.RegisterStudent(context.Background(), "stu-1", "Alice", []string{"one", "two"})
	require.NoError(t, err)
}

func TestDeleteStudentRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{"success": false, "error": "unknown student"})
	}))
	defer srv.Close()

	client := NewClient(testConfig(srv.URL), zap.NewNop())
	err := client.DeleteStudent(context.Background(), "ghost")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown student")
}
