package db

import (
	"database/sql"
	"testing"
)

// setupTestDB creates an in-memory database with the full schema and points
// the package-level handle at it for the duration of the test.
func setupTestDB(t *testing.T) {
	t.Helper()

	testDB, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}

	oldDB := DB
	DB = testDB
	t.Cleanup(func() {
		testDB.Close()
		DB = oldDB
	})

	if err := createSchema(); err != nil {
		t.Fatalf("Failed to create schema: %v", err)
	}
}

// ── Devices ─────────────────────────────────────────────────────────────

func TestDeviceCRUD(t *testing.T) {
	setupTestDB(t)

	config := []byte(`{"charger_power_w":65}`)
	if err := CreateDevice("dev-1", "Laptop", config); err != nil {
		t.Fatalf("CreateDevice failed: %v", err)
	}

	dev, err := GetDevice("dev-1")
	if err != nil {
		t.Fatalf("GetDevice failed: %v", err)
	}
	if dev == nil {
		t.Fatal("Expected the device to exist")
	}
	if dev.Name != "Laptop" || string(dev.Config) != string(config) {
		t.Errorf("Unexpected device: %+v", dev)
	}
	if dev.CreatedAt.IsZero() {
		t.Error("Expected a creation timestamp")
	}

	newConfig := []byte(`{"charger_power_w":20}`)
	if err := UpdateDeviceConfig("dev-1", "Desk Laptop", newConfig); err != nil {
		t.Fatalf("UpdateDeviceConfig failed: %v", err)
	}
	dev, _ = GetDevice("dev-1")
	if dev.Name != "Desk Laptop" || string(dev.Config) != string(newConfig) {
		t.Errorf("Expected the update applied, got %+v", dev)
	}

	if err := DeleteDevice("dev-1"); err != nil {
		t.Fatalf("DeleteDevice failed: %v", err)
	}
	dev, err = GetDevice("dev-1")
	if err != nil {
		t.Fatalf("GetDevice after delete failed: %v", err)
	}
	if dev != nil {
		t.Error("Expected the device to be gone")
	}
}

func TestUpdateMissingDevice(t *testing.T) {
	setupTestDB(t)

	if err := UpdateDeviceConfig("nope", "x", nil); err == nil {
		t.Error("Expected an error updating a missing device")
	}
}

func TestListDevices(t *testing.T) {
	setupTestDB(t)

	if err := CreateDevice("dev-b", "b", nil); err != nil {
		t.Fatalf("CreateDevice failed: %v", err)
	}
	if err := CreateDevice("dev-a", "a", nil); err != nil {
		t.Fatalf("CreateDevice failed: %v", err)
	}

	devices, err := ListDevices()
	if err != nil {
		t.Fatalf("ListDevices failed: %v", err)
	}
	if len(devices) != 2 {
		t.Fatalf("Expected 2 devices, got %d", len(devices))
	}
}

func TestDeleteDeviceCascades(t *testing.T) {
	setupTestDB(t)

	if err := CreateDevice("dev-1", "Laptop", nil); err != nil {
		t.Fatalf("CreateDevice failed: %v", err)
	}
	if err := SaveHistoryBlob("dev-1", []byte("[]")); err != nil {
		t.Fatalf("SaveHistoryBlob failed: %v", err)
	}
	if err := SaveModelState("dev-1", []byte("{}")); err != nil {
		t.Fatalf("SaveModelState failed: %v", err)
	}

	if err := DeleteDevice("dev-1"); err != nil {
		t.Fatalf("DeleteDevice failed: %v", err)
	}

	if blob, _ := LoadHistoryBlob("dev-1"); blob != nil {
		t.Error("Expected the history blob removed with the device")
	}
	if blob, _ := LoadModelState("dev-1"); blob != nil {
		t.Error("Expected the model state removed with the device")
	}
}

// ── Blobs ───────────────────────────────────────────────────────────────

func TestHistoryBlobUpsert(t *testing.T) {
	setupTestDB(t)

	if blob, err := LoadHistoryBlob("dev-1"); err != nil || blob != nil {
		t.Fatalf("Expected no blob yet, got %v / %v", blob, err)
	}

	if err := SaveHistoryBlob("dev-1", []byte("[1]")); err != nil {
		t.Fatalf("SaveHistoryBlob failed: %v", err)
	}
	if err := SaveHistoryBlob("dev-1", []byte("[1,2]")); err != nil {
		t.Fatalf("SaveHistoryBlob upsert failed: %v", err)
	}

	blob, err := LoadHistoryBlob("dev-1")
	if err != nil {
		t.Fatalf("LoadHistoryBlob failed: %v", err)
	}
	if string(blob) != "[1,2]" {
		t.Errorf("Expected the latest blob, got %s", blob)
	}

	ids, err := ListHistoryBlobs()
	if err != nil {
		t.Fatalf("ListHistoryBlobs failed: %v", err)
	}
	if len(ids) != 1 || ids[0] != "dev-1" {
		t.Errorf("Expected [dev-1], got %v", ids)
	}

	if err := DeleteHistoryBlob("dev-1"); err != nil {
		t.Fatalf("DeleteHistoryBlob failed: %v", err)
	}
	if blob, _ := LoadHistoryBlob("dev-1"); blob != nil {
		t.Error("Expected the blob removed")
	}
}

func TestModelStateUpsert(t *testing.T) {
	setupTestDB(t)

	if err := SaveModelState("dev-1", []byte(`{"v":1}`)); err != nil {
		t.Fatalf("SaveModelState failed: %v", err)
	}
	if err := SaveModelState("dev-1", []byte(`{"v":2}`)); err != nil {
		t.Fatalf("SaveModelState upsert failed: %v", err)
	}

	blob, err := LoadModelState("dev-1")
	if err != nil {
		t.Fatalf("LoadModelState failed: %v", err)
	}
	if string(blob) != `{"v":2}` {
		t.Errorf("Expected the latest state, got %s", blob)
	}

	if err := DeleteModelState("dev-1"); err != nil {
		t.Fatalf("DeleteModelState failed: %v", err)
	}
	if blob, _ := LoadModelState("dev-1"); blob != nil {
		t.Error("Expected the state removed")
	}
}
