// Package mpp wraps the Rockchip Media Process Platform (MPP) library,
// exposing narrow synchronous encoder and decoder session types for
// JPEG/H.264 hardware codec access. It mirrors internal/v4l2's layout:
// this file centralizes the cgo directives, one file per concern holds
// the Go-facing API.
package mpp

/*
#cgo LDFLAGS: -lrockchip_mpp

#include <rockchip/rk_mpi.h>
#include <rockchip/mpp_buffer.h>
#include <rockchip/mpp_frame.h>
#include <rockchip/mpp_packet.h>
#include <rockchip/mpp_meta.h>
#include <rockchip/mpp_task.h>
#include <stdlib.h>
#include <string.h>
*/
import "C"
