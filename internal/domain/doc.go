// Package domain contains the value types shared by the frame publisher and
// the process watchdog.
//
// # Entities
//
//   - [FrameFile]: one numbered image written by the capture pipeline
//   - [FramePattern]: the naming scheme of numbered frames
//   - [Session]: one supervised run of the application process
//
// Types here carry no infrastructure dependencies beyond the standard
// library's file metadata.
package domain
