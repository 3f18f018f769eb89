package service

import "testing"

func TestNewSearchIDLength(t *testing.T) {
	id, err := NewSearchID()
	if err != nil {
		t.Fatalf("NewSearchID() error: %v", err)
	}
	if len(id) != 16 {
		t.Errorf("len(id) = %d, want 16", len(id))
	}
}

func TestAssignBucketEvenIsControl(t *testing.T) {
	bucket, alpha, beta, err := AssignBucket("abcdef1230", 0.6, 0.4, 0.5, 0.5)
	if err != nil {
		t.Fatalf("AssignBucket() error: %v", err)
	}
	if bucket != "control" {
		t.Errorf("bucket = %s, want control", bucket)
	}
	if alpha != 0.6 || beta != 0.4 {
		t.Errorf("alpha/beta = %f/%f, want defaults", alpha, beta)
	}
}

func TestAssignBucketOddIsVariant(t *testing.T) {
	bucket, alpha, beta, err := AssignBucket("abcdef123f", 0.6, 0.4, 0.5, 0.5)
	if err != nil {
		t.Fatalf("AssignBucket() error: %v", err)
	}
	if bucket != "variant" {
		t.Errorf("bucket = %s, want variant", bucket)
	}
	if alpha != 0.5 || beta != 0.5 {
		t.Errorf("alpha/beta = %f/%f, want variant values", alpha, beta)
	}
}

func TestAssignBucketEmptyIDErrors(t *testing.T) {
	if _, _, _, err := AssignBucket("", 0, 0, 0, 0); err == nil {
		t.Fatal("expected error for empty search id")
	}
}
